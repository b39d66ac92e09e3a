package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrTabGone = errors.New("messaging: tab is not connected")

// Tab принимающая сторона в вкладке (сканер страницы).
type Tab interface {
	Deliver(ctx context.Context, env Envelope) (Reply, error)
}

// Tabs реестр подключённых вкладок. Вкладки регистрируются из горутин браузера,
// поэтому здесь нужен мьютекс.
type Tabs struct {
	mu   sync.RWMutex
	tabs map[string]Tab
}

func NewTabs() *Tabs { return &Tabs{tabs: map[string]Tab{}} }

func (t *Tabs) Register(tabID string, tab Tab) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tabs[tabID] = tab
}

func (t *Tabs) Unregister(tabID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tabs, tabID)
}

// SendToTab доставляет сообщение сканеру вкладки tabID.
func (t *Tabs) SendToTab(ctx context.Context, tabID string, env Envelope) (Reply, error) {
	t.mu.RLock()
	tab, ok := t.tabs[tabID]
	t.mu.RUnlock()
	if !ok {
		return Reply{}, fmt.Errorf("%w: %s", ErrTabGone, tabID)
	}
	return tab.Deliver(ctx, env)
}
