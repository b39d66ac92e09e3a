package scanner

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("scanner: element not found")
	ErrSelector = errors.New("scanner: invalid selector")
)

// Locate перебирает селекторы по порядку и возвращает первый видимый узел.
// Порядок задаёт приоритет: выигрывает первое совпадение, а не лучшее.
// Невалидные селекторы пропускаются.
func Locate(doc Document, selectors []string) (Element, error) {
	for _, sel := range selectors {
		els, err := doc.QueryAll(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if el.Visible() {
				return el, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrNotFound, selectors)
}

// LocateLast как Locate, но берёт последний видимый узел первого сработавшего
// селектора (итоговая строка в сводке заказа идёт последней).
func LocateLast(doc Document, selectors []string) (Element, error) {
	for _, sel := range selectors {
		els, err := doc.QueryAll(sel)
		if err != nil {
			continue
		}
		for i := len(els) - 1; i >= 0; i-- {
			if els[i].Visible() {
				return els[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrNotFound, selectors)
}
