package spending

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultLimit = 500

// Budget текущий месяц: лимит на необязательные траты и потраченное по корзинам.
type Budget struct {
	Limit             decimal.Decimal `json:"limit"`
	EssentialSpent    decimal.Decimal `json:"essentialSpending"`
	NonEssentialSpent decimal.Decimal `json:"nonEssentialSpending"`
}

// Spent всего за месяц (для вариантов с одним полем spent).
func (b Budget) Spent() decimal.Decimal {
	return b.EssentialSpent.Add(b.NonEssentialSpent)
}

// Remaining остаток необязательного бюджета. Обязательные покупки его не тратят.
func (b Budget) Remaining() decimal.Decimal {
	return b.Limit.Sub(b.NonEssentialSpent)
}

type Item struct {
	Name     string           `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Quantity int              `json:"quantity"`
}

// Purchase строка журнала покупок месяца.
type Purchase struct {
	ID          int64
	UserID      uuid.UUID
	MonthStart  time.Time
	Name        string
	Price       *decimal.Decimal
	Quantity    int
	Essential   bool
	PurchasedAt time.Time
}

type Month struct {
	UserID            uuid.UUID
	MonthStart        time.Time
	Limit             decimal.Decimal
	EssentialSpent    decimal.Decimal
	NonEssentialSpent decimal.Decimal
	Items             []Purchase
}

// MonthStart первое число месяца t, 00:00 UTC.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart начало следующего месяца в часовом поясе t.
func NextMonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
}

// SameMonth true, если a и b в одном календарном месяце (в часовом поясе b).
func SameMonth(a, b time.Time) bool {
	a = a.In(b.Location())
	return a.Year() == b.Year() && a.Month() == b.Month()
}
