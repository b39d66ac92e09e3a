package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/messaging"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func sample() (spending.Budget, messaging.OrderSnapshot) {
	b := spending.Budget{Limit: decimal.NewFromInt(500), NonEssentialSpent: decimal.RequireFromString("500.01")}
	o := messaging.OrderSnapshot{
		Total: decimal.RequireFromString("50.01"),
		Items: []messaging.LineItem{{Name: "Headphones", Quantity: 1}, {Name: "Case", Quantity: 2}},
	}
	return b, o
}

func TestOverLimitText(t *testing.T) {
	b, o := sample()
	assert.Equal(t,
		"Monthly limit exceeded: $500.01 of $500.00 spent on non-essentials.\nLast order: $50.01\n• Headphones\n• Case ×2",
		OverLimitText(b, o))
}

func TestTelegramOverLimit(t *testing.T) {
	f := &fakeSender{}
	tg := &Telegram{api: f, chatID: 42, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	b, o := sample()

	require.NoError(t, tg.OverLimit(context.Background(), b, o))
	require.Len(t, f.sent, 1)
	msg, ok := f.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)

	f.err = errors.New("Forbidden: bot was blocked by the user")
	assert.Error(t, tg.OverLimit(context.Background(), b, o))
}
