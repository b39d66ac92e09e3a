package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnBudget = "Budget"
	btnLimit  = "Set limit"
	btnReset  = "Reset month"
	btnExport = "Export"
)

const helpText = "Commands: /budget shows this month, /limit changes the limit, /reset zeroes this month, /export sends an Excel report."

func navKeyboard(cancel bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{}
	if cancel {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "nav:cancel"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func resetConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Reset", "reset:yes"),
		),
		navKeyboard(true).InlineKeyboard[0],
	)
}

// menuKeyboard нижняя панель (ReplyKeyboard)
func menuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]tgbotapi.KeyboardButton{
			{tgbotapi.NewKeyboardButton(btnBudget)},
			{tgbotapi.NewKeyboardButton(btnLimit), tgbotapi.NewKeyboardButton(btnReset)},
			{tgbotapi.NewKeyboardButton(btnExport)},
		},
	}
}

func withMenu(m tgbotapi.MessageConfig) tgbotapi.MessageConfig {
	m.ReplyMarkup = menuKeyboard()
	return m
}
