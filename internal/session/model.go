package session

import (
	"time"

	"github.com/Spok95/spendguard/internal/messaging"
)

type (
	TabID    string
	WindowID string
)

// Session одно незавершённое подтверждение заказа во вкладке.
// Живёт только в памяти координатора, в БД не пишется.
type Session struct {
	TabID     TabID
	Order     messaging.OrderSnapshot
	WindowID  WindowID // пусто, пока окно подтверждения не открылось
	CreatedAt time.Time
	// Confirmed пользователь подтвердил заказ: сессия ждёт orderTriggered
	// и закрытие окна её больше не удаляет.
	Confirmed bool
}

func (s *Session) HasWindow() bool { return s.WindowID != "" }
