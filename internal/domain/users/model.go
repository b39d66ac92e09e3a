package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settings строка user_settings: одна на установку.
type Settings struct {
	UserID    uuid.UUID
	Limit     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
