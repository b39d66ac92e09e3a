package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/Spok95/spendguard/internal/confirm"
	"github.com/Spok95/spendguard/internal/session"
)

var ErrUnknownWindow = errors.New("browser: unknown confirmation window")

// Popups открывает окна подтверждения отдельными окнами Chrome.
// Идентификатор окна это наш токен в URL страницы, а не id вкладки CDP:
// токен известен до того, как Chrome создаст вкладку.
type Popups struct {
	browser *rod.Browser
	baseURL string
	width   int
	height  int
	log     *slog.Logger

	mu       sync.Mutex
	targets  map[session.WindowID]proto.TargetTargetID
	byTarget map[proto.TargetTargetID]session.WindowID
}

func NewPopups(b *rod.Browser, baseURL string, width, height int, log *slog.Logger) *Popups {
	return &Popups{
		browser:  b,
		baseURL:  baseURL,
		width:    width,
		height:   height,
		log:      log,
		targets:  map[session.WindowID]proto.TargetTargetID{},
		byTarget: map[proto.TargetTargetID]session.WindowID{},
	}
}

func (p *Popups) Open(ctx context.Context, tab session.TabID) (session.WindowID, error) {
	win := session.WindowID(uuid.NewString())
	b := p.browser.Context(ctx)

	res, err := proto.TargetCreateTarget{
		URL:       confirm.PageURL(p.baseURL, string(win)),
		NewWindow: true,
	}.Call(b)
	if err != nil {
		return "", fmt.Errorf("create confirmation window: %w", err)
	}

	p.mu.Lock()
	p.targets[win] = res.TargetID
	p.byTarget[res.TargetID] = win
	p.mu.Unlock()

	if err := p.resize(b, res.TargetID); err != nil {
		p.log.Debug("resize confirmation window", "window", win, "err", err)
	}
	p.log.Info("confirmation window opened", "window", win, "tab", tab, "target", res.TargetID)
	return win, nil
}

func (p *Popups) resize(b *rod.Browser, target proto.TargetTargetID) error {
	if p.width <= 0 || p.height <= 0 {
		return nil
	}
	w, err := proto.BrowserGetWindowForTarget{TargetID: target}.Call(b)
	if err != nil {
		return err
	}
	width, height := p.width, p.height
	return proto.BrowserSetWindowBounds{
		WindowID: w.WindowID,
		Bounds:   &proto.BrowserBounds{Width: &width, Height: &height},
	}.Call(b)
}

func (p *Popups) Close(ctx context.Context, win session.WindowID) error {
	p.mu.Lock()
	target, ok := p.targets[win]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWindow, win)
	}
	if _, err := (proto.TargetCloseTarget{TargetID: target}).Call(p.browser.Context(ctx)); err != nil {
		return fmt.Errorf("close confirmation window: %w", err)
	}
	return nil
}

// IsPopup наша ли это вкладка подтверждения.
func (p *Popups) IsPopup(target proto.TargetTargetID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byTarget[target]
	return ok
}

// Forget убирает закрытое окно из таблицы и возвращает его токен.
func (p *Popups) Forget(target proto.TargetTargetID) (session.WindowID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	win, ok := p.byTarget[target]
	if !ok {
		return "", false
	}
	delete(p.byTarget, target)
	delete(p.targets, win)
	return win, true
}
