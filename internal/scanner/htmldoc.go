package scanner

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const SubstituteID = "spendguard-review-button"

const concealStyle = "visibility:hidden;position:absolute;left:-9999px"

// HTMLDocument статическая страница (сохранённый HTML). Нужна для команды
// scan и для тестов: раскладки нет, поэтому видимость определяется по
// атрибутам hidden/style/type=hidden у узла и его предков.
type HTMLDocument struct {
	mu       sync.Mutex
	root     *html.Node
	changes  chan struct{}
	handlers map[*html.Node]func()
	clicks   map[*html.Node]int
	alerts   []string
}

func ParseHTML(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &HTMLDocument{
		root:     root,
		changes:  make(chan struct{}, 16),
		handlers: map[*html.Node]func(){},
		clicks:   map[*html.Node]int{},
	}, nil
}

func compile(selector string) (cascadia.Sel, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSelector, selector, err)
	}
	return sel, nil
}

func (d *HTMLDocument) QueryAll(selector string) ([]Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := cascadia.QueryAll(d.root, sel)
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &htmlElement{doc: d, node: n})
	}
	return out, nil
}

func (d *HTMLDocument) Changes() <-chan struct{} { return d.changes }

func (d *HTMLDocument) Substitute(original Element, label string, activate func()) error {
	el, ok := original.(*htmlElement)
	if !ok || el.doc != d {
		return errors.New("htmldoc: element from another document")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if el.node.Parent == nil {
		return errors.New("htmldoc: element is detached")
	}
	btn := &html.Node{
		Type:     html.ElementNode,
		Data:     "button",
		DataAtom: atom.Button,
		Attr:     []html.Attribute{{Key: "id", Val: SubstituteID}, {Key: "type", Val: "button"}},
	}
	btn.AppendChild(&html.Node{Type: html.TextNode, Data: label})
	el.node.Parent.InsertBefore(btn, el.node)

	setAttr(el.node, "disabled", "disabled")
	setAttr(el.node, "style", concealStyle)
	d.handlers[btn] = activate
	return nil
}

func (d *HTMLDocument) Trigger(original Element) error {
	el, ok := original.(*htmlElement)
	if !ok || el.doc != d {
		return errors.New("htmldoc: element from another document")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	removeAttr(el.node, "disabled")
	setAttr(el.node, "style", "visibility:visible;position:static")
	d.clicks[el.node]++
	return nil
}

func (d *HTMLDocument) Alert(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, msg)
}

type htmlElement struct {
	doc  *HTMLDocument
	node *html.Node
}

func (e *htmlElement) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.node)
	return b.String()
}

func (e *htmlElement) Visible() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hidden(n) {
			return false
		}
	}
	return true
}

func hidden(n *html.Node) bool {
	if _, ok := attr(n, "hidden"); ok {
		return true
	}
	if t, ok := attr(n, "type"); ok && n.Data == "input" && strings.EqualFold(t, "hidden") {
		return true
	}
	style, _ := attr(n, "style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func (e *htmlElement) Query(selector string) (Element, bool) {
	sel, err := compile(selector)
	if err != nil {
		return nil, false
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if n := cascadia.Query(e.node, sel); n != nil {
		return &htmlElement{doc: e.doc, node: n}, true
	}
	return nil, false
}

func (e *htmlElement) Closest(selector string) (Element, bool) {
	sel, err := compile(selector)
	if err != nil {
		return nil, false
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && sel.Match(n) {
			return &htmlElement{doc: e.doc, node: n}, true
		}
	}
	return nil, false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}
