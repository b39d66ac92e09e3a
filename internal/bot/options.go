package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/Spok95/spendguard/internal/dialog"
	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/messaging"
)

func (b *Bot) options(ctx context.Context) (messaging.OptionsData, error) {
	var d messaging.OptionsData
	reply, err := b.bus.Send(ctx, messaging.ActionGetOptionsData, messaging.Sender{}, nil)
	if err != nil {
		return d, err
	}
	err = reply.Decode(&d)
	return d, err
}

func budgetText(d messaging.OptionsData) string {
	bud := spending.Budget{Limit: d.Limit, EssentialSpent: d.EssentialSpent, NonEssentialSpent: d.NonEssentialSpent}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Monthly limit: $%s\n", bud.Limit.StringFixed(2))
	fmt.Fprintf(&sb, "Non-essential spent: $%s\n", bud.NonEssentialSpent.StringFixed(2))
	fmt.Fprintf(&sb, "Essential spent: $%s\n", bud.EssentialSpent.StringFixed(2))
	fmt.Fprintf(&sb, "Remaining: $%s", bud.Remaining().StringFixed(2))
	if bud.Remaining().IsNegative() {
		sb.WriteString("\n⚠️ Over the limit")
	}
	return sb.String()
}

func (b *Bot) showBudget(ctx context.Context, chatID int64) {
	d, err := b.options(ctx)
	if err != nil {
		b.log.Error("load budget", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Could not load the budget: "+err.Error()))
		return
	}
	b.send(withMenu(tgbotapi.NewMessage(chatID, budgetText(d))))
}

func (b *Bot) askLimit(ctx context.Context, chatID int64) {
	text := "Send the new monthly limit, e.g. 450 or 450.50."
	if d, err := b.options(ctx); err == nil {
		text = fmt.Sprintf("Current limit: $%s.\n%s", d.Limit.StringFixed(2), text)
	}
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyMarkup = navKeyboard(true)
	sent, ok := b.sendMsg(m)
	if !ok {
		return
	}
	b.saveLastStep(ctx, chatID, dialog.StateAwaitLimit, nil, sent.MessageID)
}

// parseAmount понимает "450", "$450.50", "1,200".
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	return decimal.NewFromString(s)
}

func (b *Bot) onLimitInput(ctx context.Context, chatID int64, text string) {
	limit, err := parseAmount(text)
	if err != nil || limit.IsNegative() {
		b.send(tgbotapi.NewMessage(chatID, "Enter a non-negative amount, e.g. 450."))
		return
	}

	reply, err := b.bus.Send(ctx, messaging.ActionSetLimit, messaging.Sender{}, messaging.LimitRequest{Limit: limit})
	if err == nil && !reply.Success {
		err = errors.New(reply.Error)
	}
	if err != nil {
		b.log.Error("set limit", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Could not save the limit: "+err.Error()))
		return
	}

	b.clearPrevStep(ctx, chatID)
	_ = b.states.Reset(ctx, chatID)
	b.log.Info("limit changed from telegram", "limit", limit.StringFixed(2))
	b.send(withMenu(tgbotapi.NewMessage(chatID, fmt.Sprintf("Limit set to $%s.", limit.StringFixed(2)))))
}

func (b *Bot) askReset(ctx context.Context, chatID int64) {
	m := tgbotapi.NewMessage(chatID, "Reset this month's spending to zero? This cannot be undone.")
	m.ReplyMarkup = resetConfirmKeyboard()
	sent, ok := b.sendMsg(m)
	if !ok {
		return
	}
	b.saveLastStep(ctx, chatID, dialog.StateAwaitResetConfirm, nil, sent.MessageID)
}

func (b *Bot) resetMonth(ctx context.Context, chatID int64, mid int) {
	reply, err := b.bus.Send(ctx, messaging.ActionResetSpending, messaging.Sender{}, nil)
	if err == nil && !reply.Success {
		err = errors.New(reply.Error)
	}
	if err != nil {
		b.log.Error("reset spending", "err", err)
		b.editTextAndClear(chatID, mid, "Reset failed: "+err.Error())
		return
	}
	b.log.Info("spending reset from telegram")
	b.editTextAndClear(chatID, mid, "This month's spending was reset.")
}

func (b *Bot) sendExport(ctx context.Context, chatID int64) {
	if b.export == nil {
		b.send(tgbotapi.NewMessage(chatID, "Export is available only with the Postgres store."))
		return
	}
	m, err := b.export.Month(ctx)
	if err != nil {
		b.log.Error("load month", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Could not load purchases: "+err.Error()))
		return
	}
	var buf bytes.Buffer
	if err := spending.WriteXLSX(&buf, m); err != nil {
		b.log.Error("build xlsx", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Could not build the report."))
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  spending.ExportFileName(m.MonthStart),
		Bytes: buf.Bytes(),
	})
	doc.Caption = fmt.Sprintf("Purchases: %d", len(m.Items))
	b.send(doc)
}
