package logger

import (
	"io"
	"log/slog"
)

// New JSON-логгер. Сервис пишет в stdout, команды CLI в stderr,
// чтобы не смешивать лог с выводом команды.
func New(env string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("app", "spendguard")
}
