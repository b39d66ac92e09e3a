package scanner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Spok95/spendguard/internal/messaging"
)

// ItemSelectors селекторы позиции заказа.
type ItemSelectors struct {
	Name      string // внешний узел с названием
	Title     string // внутренний узел с текстом названия (необязателен)
	Container string // блок позиции, внутри которого цена и количество
	Price     string
	Quantity  string
}

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// ExtractLineItems для каждого найденного названия поднимается до блока позиции
// и ищет в нём цену и количество. Количество по умолчанию 1. Позиция
// пропускается только если названия нет.
func ExtractLineItems(doc Document, sel ItemSelectors) []messaging.LineItem {
	if sel.Name == "" {
		return nil
	}
	names, err := doc.QueryAll(sel.Name)
	if err != nil {
		return nil
	}

	var out []messaging.LineItem
	for _, nameEl := range names {
		name := itemName(nameEl, sel.Title)
		if name == "" {
			continue
		}
		item := messaging.LineItem{Name: name, Quantity: 1}

		if sel.Container != "" {
			if box, ok := nameEl.Closest(sel.Container); ok {
				if sel.Price != "" {
					if el, ok := box.Query(sel.Price); ok {
						if p, err := ExtractAmount(el.Text()); err == nil {
							item.Price = &p
						}
					}
				}
				if sel.Quantity != "" {
					if el, ok := box.Query(sel.Quantity); ok {
						item.Quantity = parseQuantity(el.Text())
					}
				}
			}
		}
		out = append(out, item)
	}
	return out
}

func itemName(el Element, titleSel string) string {
	if titleSel != "" {
		if inner, ok := el.Query(titleSel); ok {
			return strings.TrimSpace(inner.Text())
		}
	}
	return strings.TrimSpace(el.Text())
}

func parseQuantity(text string) int {
	m := leadingInt.FindString(strings.TrimSpace(text))
	if m == "" {
		return 1
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Classifier помечает заказ как необходимый (essential), если у каждой позиции
// в названии есть одно из ключевых слов.
type Classifier struct {
	Keywords []string
}

func (c Classifier) Essential(items []messaging.LineItem) bool {
	if len(c.Keywords) == 0 || len(items) == 0 {
		return false
	}
	for _, it := range items {
		if !c.matches(it.Name) {
			return false
		}
	}
	return true
}

func (c Classifier) matches(name string) bool {
	name = strings.ToLower(name)
	for _, kw := range c.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
