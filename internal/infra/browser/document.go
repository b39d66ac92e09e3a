package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/Spok95/spendguard/internal/scanner"
)

const (
	mutationBinding = "__spendguardMutated"
	activateBinding = "__spendguardActivate"
)

// Наблюдатель сообщает только о добавленных узлах: перерисовка корзины
// приходит именно так.
const observeJS = `() => {
	if (window.__spendguardObserver) return true;
	const target = document.documentElement || document;
	window.__spendguardObserver = new MutationObserver((records) => {
		if (records.some((r) => r.addedNodes.length > 0)) window.__spendguardMutated(null);
	});
	window.__spendguardObserver.observe(target, { childList: true, subtree: true });
	return true;
}`

const substituteJS = `(label, id) => {
	const orig = this;
	const btn = document.createElement('button');
	btn.id = id;
	btn.type = 'button';
	btn.textContent = label;
	btn.className = orig.className;
	btn.style.cssText = 'background:#f0c14b;border:1px solid #a88734;border-radius:3px;padding:6px 10px;cursor:pointer;font-weight:bold;';
	btn.addEventListener('click', (e) => {
		e.preventDefault();
		e.stopPropagation();
		window.__spendguardActivate(id);
	}, true);
	orig.parentNode.insertBefore(btn, orig);
	orig.dataset.spendguardDisabled = String(!!orig.disabled);
	orig.disabled = true;
	orig.style.visibility = 'hidden';
	orig.style.position = 'absolute';
	orig.style.left = '-9999px';
	return true;
}`

const triggerJS = `(id) => {
	const btn = document.getElementById(id);
	if (btn) btn.remove();
	this.disabled = this.dataset.spendguardDisabled === 'true';
	this.style.visibility = '';
	this.style.position = '';
	this.style.left = '';
	this.click();
	return true;
}`

const (
	textJS    = `() => this.textContent || ''`
	visibleJS = `() => { const r = this.getBoundingClientRect(); return r.width > 0 && r.height > 0; }`
	closestJS = `(s) => this.closest(s)`
)

// Document живая вкладка Chrome, видимая сканеру через CDP.
type Document struct {
	page *rod.Page
	log  *slog.Logger

	changes chan struct{}

	mu       sync.Mutex
	activate func()
	stops    []func() error

	wg sync.WaitGroup
}

// NewDocument подключает к странице наблюдатель DOM и привязку для нашей
// кнопки. Наблюдатель ставится и в текущий документ, и в будущие.
func NewDocument(page *rod.Page, log *slog.Logger) (*Document, error) {
	d := &Document{
		page:    page,
		log:     log,
		changes: make(chan struct{}, 1),
	}

	stop, err := page.Expose(mutationBinding, func(gson.JSON) (interface{}, error) {
		select {
		case d.changes <- struct{}{}:
		default:
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("expose mutation binding: %w", err)
	}
	d.stops = append(d.stops, stop)

	stop, err = page.Expose(activateBinding, func(req gson.JSON) (interface{}, error) {
		if req.Str() != scanner.SubstituteID {
			return nil, nil
		}
		d.mu.Lock()
		fn := d.activate
		d.mu.Unlock()
		if fn == nil {
			return nil, nil
		}
		// колбэк идёт из цикла событий CDP, его нельзя держать на время Review
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			fn()
		}()
		return nil, nil
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("expose activate binding: %w", err)
	}
	d.stops = append(d.stops, stop)

	remove, err := page.EvalOnNewDocument(fmt.Sprintf(`(%s)()`, observeJS))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("observe new documents: %w", err)
	}
	d.stops = append(d.stops, remove)

	if _, err := page.Eval(observeJS); err != nil {
		d.Close()
		return nil, fmt.Errorf("observe document: %w", err)
	}
	return d, nil
}

func (d *Document) QueryAll(selector string) ([]scanner.Element, error) {
	els, err := d.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", scanner.ErrSelector, selector, err)
	}
	return wrap(d, els), nil
}

func (d *Document) Changes() <-chan struct{} { return d.changes }

func (d *Document) Substitute(original scanner.Element, label string, activate func()) error {
	el, ok := original.(*element)
	if !ok || el.doc != d {
		return errors.New("browser: element from another document")
	}
	d.mu.Lock()
	d.activate = activate
	d.mu.Unlock()

	if _, err := el.el.Eval(substituteJS, label, scanner.SubstituteID); err != nil {
		d.mu.Lock()
		d.activate = nil
		d.mu.Unlock()
		return fmt.Errorf("insert substitute: %w", err)
	}
	return nil
}

func (d *Document) Trigger(original scanner.Element) error {
	el, ok := original.(*element)
	if !ok || el.doc != d {
		return errors.New("browser: element from another document")
	}
	if _, err := el.el.Eval(triggerJS, scanner.SubstituteID); err != nil {
		return fmt.Errorf("click original: %w", err)
	}
	return nil
}

// Alert не ждёт, пока пользователь закроет окно: alert блокирует поток страницы.
func (d *Document) Alert(msg string) {
	if _, err := d.page.Eval(`(m) => { setTimeout(() => alert(m), 0); return true; }`, msg); err != nil {
		d.log.Warn("alert failed", "err", err)
	}
}

// Close снимает привязки и ждёт запущенные нажатия.
func (d *Document) Close() {
	d.mu.Lock()
	stops := d.stops
	d.stops = nil
	d.activate = nil
	d.mu.Unlock()
	for _, stop := range stops {
		if err := stop(); err != nil {
			d.log.Debug("remove page binding", "err", err)
		}
	}
	d.wg.Wait()
}

type element struct {
	doc *Document
	el  *rod.Element
}

func wrap(d *Document, els rod.Elements) []scanner.Element {
	out := make([]scanner.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{doc: d, el: el})
	}
	return out
}

func (e *element) Text() string {
	res, err := e.el.Eval(textJS)
	if err != nil || res.Value.Nil() {
		return ""
	}
	return res.Value.Str()
}

func (e *element) Visible() bool {
	res, err := e.el.Eval(visibleJS)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *element) Query(selector string) (scanner.Element, bool) {
	els, err := e.el.Elements(selector)
	if err != nil || len(els) == 0 {
		return nil, false
	}
	return &element{doc: e.doc, el: els.First()}, true
}

func (e *element) Closest(selector string) (scanner.Element, bool) {
	obj, err := e.el.Evaluate(rod.Eval(closestJS, selector).ByObject())
	if err != nil || obj == nil || obj.ObjectID == "" || obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil, false
	}
	el, err := e.doc.page.ElementFromObject(obj)
	if err != nil {
		return nil, false
	}
	return &element{doc: e.doc, el: el}, true
}
