package dialog

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory состояния в памяти, для store.driver: http, где своей БД нет.
type Memory struct {
	mu    sync.Mutex
	items map[int64]Item
}

func NewMemory() *Memory { return &Memory{items: map[int64]Item{}} }

func (m *Memory) Get(_ context.Context, chatID int64) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[chatID]
	if !ok {
		return &Item{ChatID: chatID, State: StateIdle, Payload: Payload{}}, nil
	}
	return &Item{ChatID: chatID, State: it.State, Payload: clone(it.Payload)}, nil
}

func (m *Memory) Set(_ context.Context, chatID int64, state State, payload Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[chatID] = Item{ChatID: chatID, State: state, Payload: clone(payload)}
	return nil
}

func (m *Memory) Reset(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, chatID)
	return nil
}

// clone через JSON, как в Postgres: числа становятся float64.
func clone(p Payload) Payload {
	out := Payload{}
	if len(p) == 0 {
		return out
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
