package budgetapi

import (
	"github.com/shopspring/decimal"

	"github.com/Spok95/spendguard/internal/domain/spending"
)

// Формат JSON совпадает с исходным API учёта трат; поля корзин необязательны,
// простой сервер отдаёт только currentSpending.

type Item struct {
	Name     string           `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Quantity int              `json:"quantity,omitempty"`
}

type MonthlyResponse struct {
	Limit                decimal.Decimal  `json:"limit"`
	CurrentSpending      decimal.Decimal  `json:"currentSpending"`
	EssentialSpending    *decimal.Decimal `json:"essentialSpending,omitempty"`
	NonEssentialSpending *decimal.Decimal `json:"nonEssentialSpending,omitempty"`
	Items                []Item           `json:"items"`
}

type RecordPurchaseRequest struct {
	OrderAmount  decimal.Decimal `json:"orderAmount"`
	ItemsInOrder []Item          `json:"itemsInOrder"`
	IsEssential  bool            `json:"isEssential"`
}

type RecordPurchaseResponse struct {
	Message              string           `json:"message"`
	CurrentSpending      decimal.Decimal  `json:"currentSpending"`
	EssentialSpending    *decimal.Decimal `json:"essentialSpending,omitempty"`
	NonEssentialSpending *decimal.Decimal `json:"nonEssentialSpending,omitempty"`
	Limit                *decimal.Decimal `json:"limit,omitempty"`
}

type UpdateLimitRequest struct {
	Limit decimal.Decimal `json:"limit"`
}

type UpdateLimitResponse struct {
	Limit   decimal.Decimal `json:"limit"`
	Message string          `json:"message"`
}

type ResetResponse struct {
	Message         string          `json:"message"`
	CurrentSpending decimal.Decimal `json:"currentSpending"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// budget без корзин вся сумма считается необязательной.
func budget(limit, current decimal.Decimal, ess, non *decimal.Decimal) spending.Budget {
	if non == nil {
		return spending.Budget{Limit: limit, NonEssentialSpent: current}
	}
	b := spending.Budget{Limit: limit, NonEssentialSpent: *non}
	if ess != nil {
		b.EssentialSpent = *ess
	}
	return b
}

func (r MonthlyResponse) Budget() spending.Budget {
	return budget(r.Limit, r.CurrentSpending, r.EssentialSpending, r.NonEssentialSpending)
}

func FromItems(items []spending.Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{Name: it.Name, Price: it.Price, Quantity: it.Quantity})
	}
	return out
}

func ToItems(items []Item) []spending.Item {
	out := make([]spending.Item, 0, len(items))
	for _, it := range items {
		q := it.Quantity
		if q < 1 {
			q = 1
		}
		out = append(out, spending.Item{Name: it.Name, Price: it.Price, Quantity: q})
	}
	return out
}
