package session

import (
	"errors"
	"sort"
)

var (
	ErrNotFound  = errors.New("session: not found")
	ErrAmbiguous = errors.New("session: cannot determine originating tab")
)

// Store таблица сессий по вкладкам. Не потокобезопасна: ей владеет
// координатор, и меняется она только из обработчиков шины.
type Store struct {
	byTab map[TabID]*Session
}

func NewStore() *Store { return &Store{byTab: map[TabID]*Session{}} }

// Put создаёт сессию вкладки. Повторный вызов для той же вкладки перезаписывает прежнюю.
func (s *Store) Put(sess Session) *Session {
	cp := sess
	s.byTab[sess.TabID] = &cp
	return &cp
}

func (s *Store) Get(tab TabID) (*Session, bool) {
	sess, ok := s.byTab[tab]
	return sess, ok
}

// SetWindow привязывает окно подтверждения к сессии.
func (s *Store) SetWindow(tab TabID, win WindowID) error {
	sess, ok := s.byTab[tab]
	if !ok {
		return ErrNotFound
	}
	sess.WindowID = win
	return nil
}

// ByWindow ищет сессию по окну подтверждения.
func (s *Store) ByWindow(win WindowID) (*Session, bool) {
	if win == "" {
		return nil, false
	}
	for _, sess := range s.byTab {
		if sess.WindowID == win {
			return sess, true
		}
	}
	return nil, false
}

// Only возвращает единственную живую сессию; если их ноль, ErrNotFound; если больше одной, ErrAmbiguous.
func (s *Store) Only() (*Session, error) {
	switch len(s.byTab) {
	case 0:
		return nil, ErrNotFound
	case 1:
		for _, sess := range s.byTab {
			return sess, nil
		}
	}
	return nil, ErrAmbiguous
}

// Resolve окно -> сессия, с запасным вариантом «единственная сессия»,
// если окно ещё не успели записать. Сессия, у которой уже есть другое окно,
// чужому окну не отдаётся.
func (s *Store) Resolve(win WindowID) (*Session, error) {
	if sess, ok := s.ByWindow(win); ok {
		return sess, nil
	}
	sess, err := s.Only()
	if err != nil {
		return nil, err
	}
	if sess.HasWindow() || sess.Confirmed {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete удаляет сессию вкладки, возвращает удалённую.
func (s *Store) Delete(tab TabID) (*Session, bool) {
	sess, ok := s.byTab[tab]
	if ok {
		delete(s.byTab, tab)
	}
	return sess, ok
}

// DeleteByWindow удаляет сессию, к которой привязано окно win.
func (s *Store) DeleteByWindow(win WindowID) (*Session, bool) {
	sess, ok := s.ByWindow(win)
	if !ok {
		return nil, false
	}
	delete(s.byTab, sess.TabID)
	return sess, true
}

func (s *Store) Len() int { return len(s.byTab) }

// Tabs список вкладок с живыми сессиями, отсортированный.
func (s *Store) Tabs() []TabID {
	out := make([]TabID, 0, len(s.byTab))
	for tab := range s.byTab {
		out = append(out, tab)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
