package confirm

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Spok95/spendguard/internal/messaging"
)

//go:embed popup.html
var page []byte

// Requester отправляет сообщения координатору (messaging.Bus).
type Requester interface {
	Send(ctx context.Context, action messaging.Action, from messaging.Sender, payload any) (messaging.Reply, error)
}

// Handler окно подтверждения по HTTP: страница, её данные и решение.
// Окно определяется параметром window: это id, который координатор получил при открытии.
type Handler struct {
	log *slog.Logger
	bus Requester

	mu     sync.Mutex
	popups map[string]*Popup
}

func NewHandler(log *slog.Logger, bus Requester) *Handler {
	return &Handler{log: log, bus: bus, popups: map[string]*Popup{}}
}

// Register вешает маршруты на mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /confirm", h.servePage)
	mux.HandleFunc("GET /confirm/data", h.serveData)
	mux.HandleFunc("POST /confirm/decision", h.serveDecision)
}

// PageURL адрес страницы подтверждения для окна win.
func PageURL(base, win string) string {
	return base + "/confirm?window=" + win
}

// Forget забывает закрытое окно.
func (h *Handler) Forget(win string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.popups, win)
}

func (h *Handler) popup(win string, create bool) (*Popup, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.popups[win]
	if !ok && create {
		p = NewPopup()
		h.popups[win] = p
		ok = true
	}
	return p, ok
}

func (h *Handler) servePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page)
}

func (h *Handler) serveData(w http.ResponseWriter, r *http.Request) {
	win := r.URL.Query().Get("window")
	p, _ := h.popup(win, true)

	switch p.State() {
	case StateReady, StateDecided:
		v, _ := p.View()
		writeJSON(w, http.StatusOK, v)
		return
	}

	var data messaging.PopupData
	reply, err := h.bus.Send(r.Context(), messaging.ActionGetPopupData, messaging.Sender{WindowID: win}, nil)
	if err == nil {
		err = reply.Decode(&data)
	}
	p.Load(data, err)

	v, err := p.View()
	if err != nil {
		h.log.Warn("confirmation data unavailable", "window", win, "err", err)
		writeError(w, http.StatusBadGateway, "Error loading data: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type decisionRequest struct {
	Window   string             `json:"window"`
	Decision messaging.Decision `json:"decision"`
}

func (h *Handler) serveDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	action := messaging.ActionConfirmOrder
	switch req.Decision {
	case messaging.DecisionConfirm:
	case messaging.DecisionCancel:
		action = messaging.ActionCancelOrder
	default:
		writeError(w, http.StatusBadRequest, "decision must be confirm or cancel")
		return
	}

	p, ok := h.popup(req.Window, false)
	if !ok {
		writeError(w, http.StatusNotFound, "no confirmation for this window")
		return
	}
	v, err := p.Decide(req.Decision)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrNotReady) {
			status = http.StatusPreconditionFailed
		}
		writeError(w, status, err.Error())
		return
	}

	reply, err := h.bus.Send(r.Context(), action, messaging.Sender{WindowID: req.Window}, messaging.DecisionRequest{TabID: v.TabID})
	if err == nil && !reply.Success {
		err = errors.New(reply.Error)
	}
	if err != nil {
		h.log.Error("relay decision", "window", req.Window, "decision", req.Decision, "err", err)
		if req.Decision == messaging.DecisionConfirm {
			p.Reopen()
		}
		writeError(w, http.StatusBadGateway, "Failed to send confirmation: "+err.Error())
		return
	}
	h.log.Info("decision relayed", "window", req.Window, "tab", v.TabID, "decision", req.Decision)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
