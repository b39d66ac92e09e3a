package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/spendguard/internal/dialog"
	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/messaging"
)

const owner = int64(42)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	nextID  int
	updates chan tgbotapi.Update
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: 100 + f.nextID}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) last() tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	switch m := f.last().(type) {
	case tgbotapi.MessageConfig:
		return m.Text
	case tgbotapi.EditMessageTextConfig:
		return m.Text
	default:
		t.Fatalf("last sent is %T", m)
		return ""
	}
}

type call struct {
	action  messaging.Action
	payload any
}

type fakeBus struct {
	calls   []call
	options messaging.OptionsData
	fail    error
}

func (f *fakeBus) Send(_ context.Context, action messaging.Action, _ messaging.Sender, payload any) (messaging.Reply, error) {
	f.calls = append(f.calls, call{action: action, payload: payload})
	if f.fail != nil {
		return messaging.Fail(f.fail), nil
	}
	if action == messaging.ActionGetOptionsData {
		return messaging.OK(f.options), nil
	}
	return messaging.OK(nil), nil
}

func (f *fakeBus) actions() []messaging.Action {
	out := make([]messaging.Action, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.action)
	}
	return out
}

type fakeExporter struct{ month *spending.Month }

func (f fakeExporter) Month(context.Context) (*spending.Month, error) { return f.month, nil }

func newTestBot(export Exporter) (*Bot, *fakeAPI, *fakeBus, *dialog.Memory) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update, 4)}
	bus := &fakeBus{options: messaging.OptionsData{
		Limit:             decimal.NewFromInt(500),
		EssentialSpent:    decimal.RequireFromString("20"),
		NonEssentialSpent: decimal.RequireFromString("50"),
	}}
	states := dialog.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(api, log, states, bus, export, owner), api, bus, states
}

func textMsg(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
}

func command(chatID int64, cmd string) *tgbotapi.Message {
	m := textMsg(chatID, "/"+cmd)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return m
}

func callback(data string, mid int) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: mid, Chat: &tgbotapi.Chat{ID: owner}},
	}
}

func TestBudgetCommand(t *testing.T) {
	b, api, bus, _ := newTestBot(nil)

	b.onMessage(context.Background(), command(owner, "budget"))

	assert.Equal(t, []messaging.Action{messaging.ActionGetOptionsData}, bus.actions())
	text := api.lastText(t)
	assert.Contains(t, text, "Monthly limit: $500.00")
	assert.Contains(t, text, "Remaining: $450.00")
	assert.NotContains(t, text, "Over the limit")
}

func TestBudgetTextOverLimit(t *testing.T) {
	text := budgetText(messaging.OptionsData{
		Limit:             decimal.NewFromInt(100),
		NonEssentialSpent: decimal.RequireFromString("100.01"),
	})
	assert.Contains(t, text, "Remaining: $-0.01")
	assert.Contains(t, text, "Over the limit")
}

func TestForeignChatIgnored(t *testing.T) {
	b, api, bus, _ := newTestBot(nil)

	b.onMessage(context.Background(), command(7, "reset"))

	assert.Empty(t, bus.calls)
	assert.Equal(t, "This bot is bound to another chat.", api.lastText(t))
}

func TestLimitDialog(t *testing.T) {
	ctx := context.Background()
	b, api, bus, states := newTestBot(nil)

	b.onMessage(ctx, textMsg(owner, btnLimit))
	assert.Contains(t, api.lastText(t), "Current limit: $500.00")
	st, err := states.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, dialog.StateAwaitLimit, st.State)
	mid, ok := dialog.GetInt(st.Payload, "last_mid")
	require.True(t, ok)

	b.onMessage(ctx, textMsg(owner, "a lot"))
	assert.Equal(t, "Enter a non-negative amount, e.g. 450.", api.lastText(t))
	b.onMessage(ctx, textMsg(owner, "-3"))
	assert.Equal(t, "Enter a non-negative amount, e.g. 450.", api.lastText(t))

	b.onMessage(ctx, textMsg(owner, "$1,250.50"))
	last := bus.calls[len(bus.calls)-1]
	assert.Equal(t, messaging.ActionSetLimit, last.action)
	assert.Equal(t, "1250.5", last.payload.(messaging.LimitRequest).Limit.String())
	assert.Equal(t, "Limit set to $1250.50.", api.lastText(t))

	st, err = states.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, dialog.StateIdle, st.State)

	// кнопки прошлого шага убраны
	var cleared bool
	for _, c := range api.sent {
		if e, ok := c.(tgbotapi.EditMessageReplyMarkupConfig); ok && e.MessageID == mid {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestLimitRejectedByCoordinator(t *testing.T) {
	ctx := context.Background()
	b, api, bus, states := newTestBot(nil)
	require.NoError(t, states.Set(ctx, owner, dialog.StateAwaitLimit, nil))
	bus.fail = errors.New("store unavailable")

	b.onMessage(ctx, textMsg(owner, "300"))

	assert.Equal(t, "Could not save the limit: store unavailable", api.lastText(t))
	st, err := states.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, dialog.StateAwaitLimit, st.State)
}

func TestResetDialog(t *testing.T) {
	ctx := context.Background()
	b, api, bus, states := newTestBot(nil)

	b.onMessage(ctx, command(owner, "reset"))
	cfg, ok := api.last().(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.NotNil(t, cfg.ReplyMarkup)
	st, err := states.Get(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, dialog.StateAwaitResetConfirm, st.State)

	b.onCallback(ctx, callback("reset:yes", 101))
	assert.Equal(t, []messaging.Action{messaging.ActionResetSpending}, bus.actions())
	assert.Equal(t, "This month's spending was reset.", api.lastText(t))

	// повторное нажатие не сбрасывает второй раз
	b.onCallback(ctx, callback("reset:yes", 101))
	assert.Len(t, bus.calls, 1)
	assert.Equal(t, "This request has expired.", api.lastText(t))
}

func TestCancelCallback(t *testing.T) {
	ctx := context.Background()
	b, api, bus, states := newTestBot(nil)
	require.NoError(t, states.Set(ctx, owner, dialog.StateAwaitResetConfirm, nil))

	b.onCallback(ctx, callback("nav:cancel", 5))

	assert.Empty(t, bus.calls)
	assert.Equal(t, "Cancelled.", api.lastText(t))
	st, err := states.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, dialog.StateIdle, st.State)
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	b, api, _, _ := newTestBot(nil)
	b.onMessage(ctx, textMsg(owner, btnExport))
	assert.Equal(t, "Export is available only with the Postgres store.", api.lastText(t))

	month := &spending.Month{
		MonthStart: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Limit:      decimal.NewFromInt(500),
		Items: []spending.Purchase{{
			Name:        "Lamp",
			Quantity:    1,
			PurchasedAt: time.Date(2026, 10, 3, 12, 0, 0, 0, time.UTC),
		}},
	}
	b, api, _, _ = newTestBot(fakeExporter{month: month})
	b.onMessage(ctx, command(owner, "export"))

	doc, ok := api.last().(tgbotapi.DocumentConfig)
	require.True(t, ok)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "spending_2026_10.xlsx", file.Name)
	assert.NotEmpty(t, file.Bytes)
	assert.Equal(t, "Purchases: 1", doc.Caption)
}

func TestParseAmount(t *testing.T) {
	for in, want := range map[string]string{
		"450":       "450",
		" $450.50 ": "450.5",
		"1,200":     "1200",
		"0":         "0",
	} {
		got, err := parseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}
	_, err := parseAmount("twelve")
	assert.Error(t, err)
}

func TestRunStopsWhenUpdatesClose(t *testing.T) {
	b, api, bus, _ := newTestBot(nil)
	api.updates <- tgbotapi.Update{Message: command(owner, "budget")}
	close(api.updates)

	require.NoError(t, b.Run(context.Background(), 30))
	assert.Equal(t, []messaging.Action{messaging.ActionGetOptionsData}, bus.actions())
}

func TestRunStopsOnCancel(t *testing.T) {
	b, _, _, _ := newTestBot(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Run(ctx, 30), context.Canceled)
}
