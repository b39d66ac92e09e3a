package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type Action string

const (
	// Сканер -> координатор
	ActionShowConfirmation Action = "showConfirmation"
	ActionOrderTriggered   Action = "orderTriggered"

	// Окно подтверждения -> координатор
	ActionGetPopupData Action = "getPopupData"
	ActionConfirmOrder Action = "confirmOrder"
	ActionCancelOrder  Action = "cancelOrder"

	// Координатор -> сканер
	ActionTriggerOriginalOrder Action = "triggerOriginalOrder"

	// Браузер -> координатор
	ActionTabRemoved    Action = "tabRemoved"
	ActionWindowRemoved Action = "windowRemoved"

	// Настройки
	ActionGetOptionsData Action = "getOptionsData"
	ActionSetLimit       Action = "setLimit"
	ActionResetSpending  Action = "resetSpending"
)

type LineItem struct {
	Name     string           `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Quantity int              `json:"quantity"`
}

// OrderSnapshot то, что сканер вытащил со страницы оформления.
type OrderSnapshot struct {
	Total     decimal.Decimal `json:"orderTotal"`
	Items     []LineItem      `json:"items,omitempty"`
	Essential bool            `json:"isEssential"`
}

type Decision string

const (
	DecisionConfirm Decision = "confirm"
	DecisionCancel  Decision = "cancel"
)

// Sender откуда пришло сообщение. Для сканера заполнен TabID, для окна подтверждения WindowID.
type Sender struct {
	TabID    string `json:"tabId,omitempty"`
	WindowID string `json:"windowId,omitempty"`
}

type Envelope struct {
	Action  Action          `json:"action"`
	Sender  Sender          `json:"sender"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Reply struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

/* Полезные нагрузки по action */

type DecisionRequest struct {
	TabID string `json:"tabId"`
}

type TriggerRequest struct {
	Order OrderSnapshot `json:"order"`
}

type LimitRequest struct {
	Limit decimal.Decimal `json:"newLimit"`
}

type RemovedRequest struct {
	ID string `json:"id"`
}

// PopupData объединённый снимок заказа и бюджета для окна подтверждения.
type PopupData struct {
	TabID             string          `json:"tabId"`
	OrderTotal        decimal.Decimal `json:"orderTotal"`
	Items             []LineItem      `json:"items"`
	Essential         bool            `json:"isEssential"`
	Limit             decimal.Decimal `json:"limit"`
	EssentialSpent    decimal.Decimal `json:"currentEssentialSpending"`
	NonEssentialSpent decimal.Decimal `json:"currentNonEssentialSpending"`
	Fallback          bool            `json:"fallback"`
}

type OptionsData struct {
	Limit             decimal.Decimal `json:"limit"`
	EssentialSpent    decimal.Decimal `json:"essentialSpending"`
	NonEssentialSpent decimal.Decimal `json:"nonEssentialSpending"`
}

type PersistResult struct {
	EssentialSpent    decimal.Decimal `json:"essential"`
	NonEssentialSpent decimal.Decimal `json:"nonEssential"`
}

// NewEnvelope собирает конверт с JSON-нагрузкой.
func NewEnvelope(action Action, sender Sender, payload any) (Envelope, error) {
	env := Envelope{Action: action, Sender: sender}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	env.Payload = raw
	return env, nil
}

// Decode разбирает нагрузку конверта в dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Action)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Action, err)
	}
	return nil
}

func OK(data any) Reply {
	if data == nil {
		return Reply{Success: true}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Fail(err)
	}
	return Reply{Success: true, Data: raw}
}

func Fail(err error) Reply {
	return Reply{Success: false, Error: err.Error()}
}

// Decode разбирает данные ответа в dst.
func (r Reply) Decode(dst any) error {
	if !r.Success {
		return fmt.Errorf("reply: %s", r.Error)
	}
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, dst)
}
