package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/infra/budgetapi"
)

// Ledger бюджет текущего пользователя (spending.Ledger).
type Ledger interface {
	Budget(ctx context.Context) (spending.Budget, error)
	Record(ctx context.Context, total decimal.Decimal, essential bool, items []spending.Item) (spending.Budget, error)
	SetLimit(ctx context.Context, limit decimal.Decimal) error
	Reset(ctx context.Context) error
	Month(ctx context.Context) (*spending.Month, error)
}

// SpendingAPI REST API учёта трат поверх Postgres. Тот же формат понимает budgetapi.Client.
type SpendingAPI struct {
	log    *slog.Logger
	ledger Ledger
}

func NewSpendingAPI(log *slog.Logger, ledger Ledger) *SpendingAPI {
	return &SpendingAPI{log: log, ledger: ledger}
}

func (a *SpendingAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /spending/monthly", a.monthly)
	mux.HandleFunc("POST /spending/record-purchase", a.recordPurchase)
	mux.HandleFunc("PUT /spending/limit", a.updateLimit)
	mux.HandleFunc("POST /spending/reset", a.reset)
	mux.HandleFunc("GET /spending/export.xlsx", a.export)
}

func (a *SpendingAPI) monthly(w http.ResponseWriter, r *http.Request) {
	m, err := a.ledger.Month(r.Context())
	if err != nil {
		a.fail(w, "load month", err)
		return
	}
	items := make([]budgetapi.Item, 0, len(m.Items))
	for _, p := range m.Items {
		items = append(items, budgetapi.Item{Name: p.Name, Price: p.Price, Quantity: p.Quantity})
	}
	ess, non := m.EssentialSpent, m.NonEssentialSpent
	writeJSON(w, http.StatusOK, budgetapi.MonthlyResponse{
		Limit:                m.Limit,
		CurrentSpending:      ess.Add(non),
		EssentialSpending:    &ess,
		NonEssentialSpending: &non,
		Items:                items,
	})
}

func (a *SpendingAPI) recordPurchase(w http.ResponseWriter, r *http.Request) {
	var req budgetapi.RecordPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if req.OrderAmount.IsNegative() {
		writeDetail(w, http.StatusUnprocessableEntity, "orderAmount must not be negative")
		return
	}
	b, err := a.ledger.Record(r.Context(), req.OrderAmount, req.IsEssential, budgetapi.ToItems(req.ItemsInOrder))
	if err != nil {
		a.fail(w, "record purchase", err)
		return
	}
	ess, non := b.EssentialSpent, b.NonEssentialSpent
	resp := budgetapi.RecordPurchaseResponse{
		Message:              fmt.Sprintf("Purchase recorded successfully. New spending: $%s", b.Spent().StringFixed(2)),
		CurrentSpending:      b.Spent(),
		EssentialSpending:    &ess,
		NonEssentialSpending: &non,
	}
	if !b.Limit.IsZero() {
		resp.Limit = &b.Limit
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *SpendingAPI) updateLimit(w http.ResponseWriter, r *http.Request) {
	var req budgetapi.UpdateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if req.Limit.IsNegative() {
		writeDetail(w, http.StatusUnprocessableEntity, "limit must not be negative")
		return
	}
	if err := a.ledger.SetLimit(r.Context(), req.Limit); err != nil {
		a.fail(w, "set limit", err)
		return
	}
	writeJSON(w, http.StatusOK, budgetapi.UpdateLimitResponse{Limit: req.Limit, Message: "Spending limit updated successfully."})
}

func (a *SpendingAPI) reset(w http.ResponseWriter, r *http.Request) {
	if err := a.ledger.Reset(r.Context()); err != nil {
		a.fail(w, "reset", err)
		return
	}
	writeJSON(w, http.StatusOK, budgetapi.ResetResponse{Message: "Spending for the current month reset successfully."})
}

func (a *SpendingAPI) export(w http.ResponseWriter, r *http.Request) {
	m, err := a.ledger.Month(r.Context())
	if err != nil {
		a.fail(w, "load month", err)
		return
	}
	// сначала в буфер: при ошибке ещё можно отдать 500
	var buf bytes.Buffer
	if err := spending.WriteXLSX(&buf, m); err != nil {
		a.fail(w, "export xlsx", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", spending.ExportFileName(m.MonthStart)))
	_, _ = w.Write(buf.Bytes())
}

func (a *SpendingAPI) fail(w http.ResponseWriter, op string, err error) {
	a.log.Error("spending api", "op", op, "err", err)
	writeDetail(w, http.StatusInternalServerError, "Internal error: "+op+" failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, budgetapi.ErrorResponse{Detail: detail})
}
