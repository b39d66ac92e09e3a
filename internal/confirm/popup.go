package confirm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Spok95/spendguard/internal/messaging"
)

var (
	ErrAlreadyDecided = errors.New("confirm: decision already made")
	ErrNotReady       = errors.New("confirm: nothing to decide yet")
)

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
	StateDecided State = "decided"
)

// Popup одно окно подтверждения: Loading -> Ready | Failed -> Decided.
// Решение принимается ровно один раз.
type Popup struct {
	mu       sync.Mutex
	state    State
	view     View
	err      error
	decision messaging.Decision
}

func NewPopup() *Popup { return &Popup{state: StateLoading} }

func (p *Popup) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Load переводит окно в Ready или Failed по ответу координатора.
// После решения ничего не меняет.
func (p *Popup) Load(d messaging.PopupData, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDecided {
		return
	}
	if err != nil {
		p.state, p.err = StateFailed, err
		return
	}
	p.state, p.view, p.err = StateReady, Compute(d), nil
}

func (p *Popup) View() (View, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateReady, StateDecided:
		return p.view, nil
	case StateFailed:
		return View{}, p.err
	default:
		return View{}, ErrNotReady
	}
}

// Decide фиксирует решение. Кнопки выключаются сразу, поэтому второй вызов
// получает ErrAlreadyDecided. В Loading и Failed решать нечего.
func (p *Popup) Decide(d messaging.Decision) (View, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateDecided:
		return View{}, ErrAlreadyDecided
	case StateReady:
	default:
		return View{}, fmt.Errorf("%w: %s", ErrNotReady, p.state)
	}
	p.state, p.decision = StateDecided, d
	return p.view, nil
}

// Reopen возвращает окно в Ready, если подтверждение не дошло до координатора.
func (p *Popup) Reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDecided {
		p.state, p.decision = StateReady, ""
	}
}

func (p *Popup) Decision() messaging.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decision
}
