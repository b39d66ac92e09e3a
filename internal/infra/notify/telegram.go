package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/messaging"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram шлёт в чат сообщение, когда необязательные траты вышли за лимит.
type Telegram struct {
	api    sender
	chatID int64
	log    *slog.Logger
}

// Connect авторизует бота. Один клиент на уведомления и на бота настроек.
func Connect(token string, log *slog.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log.Info("telegram authorized", "bot", api.Self.UserName)
	return api, nil
}

func NewTelegram(api *tgbotapi.BotAPI, chatID int64, log *slog.Logger) *Telegram {
	return &Telegram{api: api, chatID: chatID, log: log}
}

func (t *Telegram) OverLimit(_ context.Context, b spending.Budget, order messaging.OrderSnapshot) error {
	msg := tgbotapi.NewMessage(t.chatID, OverLimitText(b, order))
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.log.Info("over-limit notification sent", "chat_id", t.chatID)
	return nil
}

// OverLimitText текст уведомления о превышении.
func OverLimitText(b spending.Budget, order messaging.OrderSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Monthly limit exceeded: $%s of $%s spent on non-essentials.\n",
		b.NonEssentialSpent.StringFixed(2), b.Limit.StringFixed(2))
	fmt.Fprintf(&sb, "Last order: $%s", order.Total.StringFixed(2))
	for _, it := range order.Items {
		sb.WriteString("\n• ")
		sb.WriteString(it.Name)
		if it.Quantity > 1 {
			fmt.Fprintf(&sb, " ×%d", it.Quantity)
		}
	}
	return sb.String()
}
