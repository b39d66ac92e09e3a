package confirm

import (
	"github.com/shopspring/decimal"

	"github.com/Spok95/spendguard/internal/messaging"
)

// View то, что показывает окно подтверждения.
type View struct {
	TabID               string               `json:"tabId"`
	OrderTotal          decimal.Decimal      `json:"orderTotal"`
	Items               []messaging.LineItem `json:"items"`
	Essential           bool                 `json:"isEssential"`
	Limit               decimal.Decimal      `json:"limit"`
	EssentialSpent      decimal.Decimal      `json:"currentEssentialSpending"`
	NonEssentialSpent   decimal.Decimal      `json:"currentNonEssentialSpending"`
	Remaining           decimal.Decimal      `json:"remaining"`
	RemainingAfterOrder decimal.Decimal      `json:"remainingAfterOrder"`
	Warning             bool                 `json:"warning"`
	Fallback            bool                 `json:"fallback"`
}

// Compute остаток = лимит − необязательные траты. Обязательные покупки лимит
// не расходуют и предупреждения не дают.
func Compute(d messaging.PopupData) View {
	remaining := d.Limit.Sub(d.NonEssentialSpent)
	after := remaining.Sub(d.OrderTotal)
	return View{
		TabID:               d.TabID,
		OrderTotal:          d.OrderTotal,
		Items:               d.Items,
		Essential:           d.Essential,
		Limit:               d.Limit,
		EssentialSpent:      d.EssentialSpent,
		NonEssentialSpent:   d.NonEssentialSpent,
		Remaining:           remaining,
		RemainingAfterOrder: after,
		Warning:             !d.Essential && after.IsNegative(),
		Fallback:            d.Fallback,
	}
}
