package scanner

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Alerts сообщения, показанные пользователю.
func (d *HTMLDocument) Alerts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.alerts...)
}

// Clicks сколько раз вызывали родное действие узла.
func (d *HTMLDocument) Clicks(e Element) int {
	el, ok := e.(*htmlElement)
	if !ok {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clicks[el.node]
}

// Press нажимает нашу кнопку-заменитель.
func (d *HTMLDocument) Press() bool {
	d.mu.Lock()
	var fn func()
	for _, h := range d.handlers {
		fn = h
	}
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Append дописывает HTML-фрагмент в конец первого узла по селектору parent
// и сигналит об изменении DOM.
func (d *HTMLDocument) Append(parent, fragment string) error {
	sel, err := compile(parent)
	if err != nil {
		return err
	}
	d.mu.Lock()
	target := cascadia.Query(d.root, sel)
	if target == nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, parent)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), target)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		target.AppendChild(n)
	}
	d.mu.Unlock()

	select {
	case d.changes <- struct{}{}:
	default:
	}
	return nil
}
