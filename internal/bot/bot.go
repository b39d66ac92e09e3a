package bot

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/spendguard/internal/dialog"
	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/messaging"
)

// API часть tgbotapi.BotAPI, которой пользуется бот.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

// States хранилище шагов диалога: dialog.Repo или dialog.Memory.
type States interface {
	Get(ctx context.Context, chatID int64) (*dialog.Item, error)
	Set(ctx context.Context, chatID int64, state dialog.State, payload dialog.Payload) error
	Reset(ctx context.Context, chatID int64) error
}

// Requester шина координатора: бот меняет настройки теми же сообщениями,
// что и страница настроек.
type Requester interface {
	Send(ctx context.Context, action messaging.Action, from messaging.Sender, payload any) (messaging.Reply, error)
}

// Exporter журнал месяца для выгрузки в Excel. Есть только у Postgres.
type Exporter interface {
	Month(ctx context.Context) (*spending.Month, error)
}

// Bot настройки бюджета из Telegram. Отвечает только владельцу (telegram.chat_id).
type Bot struct {
	api    API
	log    *slog.Logger
	states States
	bus    Requester
	export Exporter
	owner  int64
}

func New(api API, log *slog.Logger, states States, bus Requester, export Exporter, ownerChatID int64) *Bot {
	return &Bot{
		api: api, log: log, states: states,
		bus: bus, export: export, owner: ownerChatID,
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			b.handle(ctx, upd)
		}
	}
}

func (b *Bot) handle(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		b.onMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		b.onCallback(ctx, upd.CallbackQuery)
	}
}

func (b *Bot) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if chatID != b.owner {
		b.log.Warn("message from unknown chat", "chat_id", chatID)
		b.send(tgbotapi.NewMessage(chatID, "This bot is bound to another chat."))
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case msg.IsCommand():
		b.onCommand(ctx, chatID, msg.Command())
		return
	case text == btnBudget:
		b.onCommand(ctx, chatID, "budget")
		return
	case text == btnLimit:
		b.onCommand(ctx, chatID, "limit")
		return
	case text == btnReset:
		b.onCommand(ctx, chatID, "reset")
		return
	case text == btnExport:
		b.onCommand(ctx, chatID, "export")
		return
	}

	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		b.log.Error("load dialog state", "err", err)
		return
	}
	switch st.State {
	case dialog.StateAwaitLimit:
		b.onLimitInput(ctx, chatID, text)
	default:
		b.send(withMenu(tgbotapi.NewMessage(chatID, helpText)))
	}
}

func (b *Bot) onCommand(ctx context.Context, chatID int64, cmd string) {
	b.clearPrevStep(ctx, chatID)
	_ = b.states.Reset(ctx, chatID)

	switch cmd {
	case "start", "help":
		b.send(withMenu(tgbotapi.NewMessage(chatID, helpText)))
	case "budget":
		b.showBudget(ctx, chatID)
	case "limit":
		b.askLimit(ctx, chatID)
	case "reset":
		b.askReset(ctx, chatID)
	case "export":
		b.sendExport(ctx, chatID)
	default:
		b.send(tgbotapi.NewMessage(chatID, "Unknown command. "+helpText))
	}
}

func (b *Bot) onCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	mid := cb.Message.MessageID
	if chatID != b.owner {
		_ = b.answerCallback(cb, "Not allowed", true)
		return
	}

	switch cb.Data {
	case "nav:cancel":
		_ = b.states.Reset(ctx, chatID)
		b.editTextAndClear(chatID, mid, "Cancelled.")
	case "reset:yes":
		st, err := b.states.Get(ctx, chatID)
		if err != nil || st.State != dialog.StateAwaitResetConfirm {
			b.editTextAndClear(chatID, mid, "This request has expired.")
			break
		}
		_ = b.states.Reset(ctx, chatID)
		b.resetMonth(ctx, chatID, mid)
	default:
		b.log.Debug("unknown callback", "data", cb.Data)
	}
	_ = b.answerCallback(cb, "", false)
}
