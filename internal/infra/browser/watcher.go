package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/jonboulle/clockwork"

	"github.com/Spok95/spendguard/internal/infra/metrics"
	"github.com/Spok95/spendguard/internal/messaging"
	"github.com/Spok95/spendguard/internal/scanner"
)

const loadTimeout = 30 * time.Second

// Connect подключается к уже запущенному Chrome по controlURL или запускает свой.
func Connect(ctx context.Context, controlURL string, headless bool) (*rod.Browser, error) {
	if controlURL == "" {
		u, err := launcher.New().Headless(headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return b, nil
}

// CompilePatterns разбирает регулярные выражения URL страниц оформления.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("checkout url pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

type WatcherDeps struct {
	Log      *slog.Logger
	Browser  *rod.Browser
	Bus      scanner.Outbox
	Tabs     *messaging.Tabs
	Popups   *Popups
	Patterns []*regexp.Regexp
	Scanner  scanner.Config
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
	// OnWindowClosed вызывается, когда пользователь закрыл окно подтверждения.
	OnWindowClosed func(win string)
}

type attachment struct {
	doc     *Document
	scanner *scanner.Scanner
	cancel  context.CancelFunc
}

// Watcher следит за вкладками Chrome: на страницы оформления сажает сканер,
// о закрытых вкладках и окнах подтверждения сообщает координатору.
type Watcher struct {
	d WatcherDeps

	mu       sync.Mutex
	attached map[proto.TargetTargetID]*attachment

	wg sync.WaitGroup
}

func NewWatcher(d WatcherDeps) *Watcher {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return &Watcher{d: d, attached: map[proto.TargetTargetID]*attachment{}}
}

// Run обрабатывает события вкладок до отмены ctx.
func (w *Watcher) Run(ctx context.Context) error {
	b := w.d.Browser.Context(ctx)
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		return fmt.Errorf("discover targets: %w", err)
	}

	wait := b.EachEvent(
		func(e *proto.TargetTargetCreated) { w.consider(ctx, e.TargetInfo) },
		func(e *proto.TargetTargetInfoChanged) { w.consider(ctx, e.TargetInfo) },
		func(e *proto.TargetTargetDestroyed) { w.destroyed(ctx, e.TargetID) },
	)

	pages, err := b.Pages()
	if err != nil {
		w.d.Log.Warn("list open pages", "err", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		w.consider(ctx, info)
	}

	wait()
	w.shutdown()
	return ctx.Err()
}

func (w *Watcher) isCheckout(url string) bool {
	for _, re := range w.d.Patterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

func (w *Watcher) consider(ctx context.Context, info *proto.TargetTargetInfo) {
	if info == nil || info.Type != "page" {
		return
	}
	if w.d.Popups != nil && w.d.Popups.IsPopup(info.TargetID) {
		return
	}
	checkout := w.isCheckout(info.URL)
	actx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	a, attached := w.attached[info.TargetID]
	switch {
	case checkout && !attached:
		a = &attachment{cancel: cancel}
		w.attached[info.TargetID] = a
	case !checkout && attached:
		delete(w.attached, info.TargetID)
	}
	w.mu.Unlock()

	switch {
	case checkout && !attached:
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.attach(actx, info.TargetID, info.URL, a)
		}()
	case !checkout && attached:
		// ушли со страницы оформления: сессия остаётся, сканер больше не нужен
		w.detach(info.TargetID, a)
		cancel()
	default:
		cancel()
	}
}

func (w *Watcher) attach(ctx context.Context, target proto.TargetTargetID, url string, a *attachment) {
	log := w.d.Log.With("tab", target)
	page, err := w.d.Browser.PageFromTarget(target)
	if err != nil {
		w.intercepted("error")
		log.Warn("open checkout page", "err", err)
		return
	}
	page = page.Context(ctx)
	if err := page.Timeout(loadTimeout).WaitLoad(); err != nil {
		log.Debug("checkout page still loading", "err", err)
	}

	doc, err := NewDocument(page, log)
	if err != nil {
		w.intercepted("error")
		log.Warn("attach to checkout page", "err", err)
		return
	}
	sc := scanner.New(string(target), doc, w.d.Bus, w.d.Scanner, w.d.Clock, w.d.Log)

	w.mu.Lock()
	if w.attached[target] != a {
		w.mu.Unlock()
		sc.Close()
		doc.Close()
		return
	}
	a.doc, a.scanner = doc, sc
	w.d.Tabs.Register(string(target), sc)
	w.mu.Unlock()

	log.Info("checkout page detected", "url", url)

	switch err := sc.Intercept(ctx); {
	case err == nil:
		w.intercepted("intercepted")
	case errors.Is(err, scanner.ErrObserveTimeout):
		w.intercepted("timeout")
		log.Warn("checkout button not found", "err", err)
	case errors.Is(err, context.Canceled):
	default:
		w.intercepted("error")
		log.Error("intercept checkout", "err", err)
	}
}

func (w *Watcher) intercepted(result string) {
	if w.d.Metrics != nil {
		w.d.Metrics.Intercepts.WithLabelValues(result).Inc()
	}
}

func (w *Watcher) detach(target proto.TargetTargetID, a *attachment) {
	if a.cancel != nil {
		a.cancel()
	}
	w.mu.Lock()
	doc, sc := a.doc, a.scanner
	a.doc, a.scanner = nil, nil
	w.mu.Unlock()

	if sc == nil {
		return
	}
	w.d.Tabs.Unregister(string(target))
	sc.Close()
	doc.Close()
}

func (w *Watcher) destroyed(ctx context.Context, target proto.TargetTargetID) {
	if w.d.Popups != nil {
		if win, ok := w.d.Popups.Forget(target); ok {
			if w.d.OnWindowClosed != nil {
				w.d.OnWindowClosed(string(win))
			}
			w.notify(ctx, messaging.ActionWindowRemoved, string(win))
			return
		}
	}

	w.mu.Lock()
	a, ok := w.attached[target]
	delete(w.attached, target)
	w.mu.Unlock()
	if ok {
		w.detach(target, a)
	}
	w.notify(ctx, messaging.ActionTabRemoved, string(target))
}

// notify отправляет событие в отдельной горутине: обработчик событий CDP
// не должен ждать координатора.
func (w *Watcher) notify(ctx context.Context, action messaging.Action, id string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		reply, err := w.d.Bus.Send(ctx, action, messaging.Sender{}, messaging.RemovedRequest{ID: id})
		switch {
		case err != nil:
			if !errors.Is(err, context.Canceled) {
				w.d.Log.Warn("notify coordinator", "action", action, "id", id, "err", err)
			}
		case !reply.Success:
			w.d.Log.Debug("coordinator ignored event", "action", action, "id", id, "err", reply.Error)
		}
	}()
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	attached := w.attached
	w.attached = map[proto.TargetTargetID]*attachment{}
	w.mu.Unlock()
	for target, a := range attached {
		w.detach(target, a)
	}
	w.wg.Wait()
}
