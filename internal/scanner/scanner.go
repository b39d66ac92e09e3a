package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Spok95/spendguard/internal/messaging"
)

var (
	ErrObserveTimeout = errors.New("scanner: checkout control did not appear in time")
	ErrState          = errors.New("scanner: wrong state")
)

type State string

const (
	StateIdle            State = "idle"
	StateScanning        State = "scanning"
	StateIntercepted     State = "intercepted"
	StateActionTriggered State = "action_triggered"
)

const DefaultLabel = "Review Spending & Place Order"

// Outbox канал до координатора.
type Outbox interface {
	Send(ctx context.Context, action messaging.Action, from messaging.Sender, payload any) (messaging.Reply, error)
}

type Config struct {
	CheckoutSelectors []string
	TotalSelectors    []string
	TotalLastMatch    bool
	Items             ItemSelectors
	Classifier        Classifier
	ObserveTimeout    time.Duration
	SettleDelay       time.Duration
	TriggerDelay      time.Duration
	Label             string
}

// Scanner сидит в одной вкладке: находит кнопку оформления и сумму,
// подменяет кнопку своей и по команде координатора нажимает настоящую.
type Scanner struct {
	tab   string
	doc   Document
	out   Outbox
	cfg   Config
	clock clockwork.Clock
	log   *slog.Logger

	mu      sync.Mutex
	state   State
	control Element

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

func New(tab string, doc Document, out Outbox, cfg Config, clock clockwork.Clock, log *slog.Logger) *Scanner {
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scanner{
		tab:   tab,
		doc:   doc,
		out:   out,
		cfg:   cfg,
		clock: clock,
		log:   log.With("tab", tab),
		state: StateIdle,
		stop:  make(chan struct{}),
	}
}

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scanner) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Intercept ищет кнопку и сумму; если их ещё нет, следит за изменениями DOM
// не дольше ObserveTimeout. После неудачи сканер возвращается в Idle.
func (s *Scanner) Intercept(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: intercept in %s", ErrState, st)
	}
	s.state = StateScanning
	s.mu.Unlock()

	if ok, err := s.tryIntercept(); ok || err != nil {
		return err
	}
	s.log.Debug("checkout control not ready, observing", "timeout", s.cfg.ObserveTimeout)

	timer := s.clock.NewTimer(s.cfg.ObserveTimeout)
	defer timer.Stop()
	changes := s.doc.Changes()
	for {
		select {
		case <-ctx.Done():
			s.setState(StateIdle)
			return ctx.Err()
		case <-timer.Chan():
			s.setState(StateIdle)
			return ErrObserveTimeout
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if ok, err := s.tryIntercept(); ok || err != nil {
				return err
			}
		}
	}
}

func (s *Scanner) tryIntercept() (bool, error) {
	control, err := Locate(s.doc, s.cfg.CheckoutSelectors)
	if err != nil {
		return false, nil
	}
	if _, err := s.locateTotal(); err != nil {
		return false, nil
	}
	if err := s.doc.Substitute(control, s.cfg.Label, s.activate); err != nil {
		s.setState(StateIdle)
		return false, fmt.Errorf("inject substitute: %w", err)
	}

	s.mu.Lock()
	s.control = control
	s.state = StateIntercepted
	s.mu.Unlock()
	s.log.Info("checkout intercepted")
	return true, nil
}

func (s *Scanner) locateTotal() (Element, error) {
	if s.cfg.TotalLastMatch {
		return LocateLast(s.doc, s.cfg.TotalSelectors)
	}
	return Locate(s.doc, s.cfg.TotalSelectors)
}

func (s *Scanner) activate() {
	if err := s.Review(context.Background()); err != nil {
		s.log.Error("review failed", "err", err)
	}
}

// Snapshot читает сумму и позиции заказа со страницы.
func Snapshot(doc Document, cfg Config) (messaging.OrderSnapshot, error) {
	var (
		el  Element
		err error
	)
	if cfg.TotalLastMatch {
		el, err = LocateLast(doc, cfg.TotalSelectors)
	} else {
		el, err = Locate(doc, cfg.TotalSelectors)
	}
	if err != nil {
		return messaging.OrderSnapshot{}, err
	}
	total, err := ExtractAmount(el.Text())
	if err != nil {
		return messaging.OrderSnapshot{}, err
	}
	items := ExtractLineItems(doc, cfg.Items)
	return messaging.OrderSnapshot{
		Total:     total,
		Items:     items,
		Essential: cfg.Classifier.Essential(items),
	}, nil
}

// Review срабатывает на нажатие нашей кнопки: даёт странице дорисоваться,
// перечитывает заказ и просит координатор открыть подтверждение.
func (s *Scanner) Review(ctx context.Context) error {
	if st := s.State(); st != StateIntercepted {
		return fmt.Errorf("%w: review in %s", ErrState, st)
	}

	select {
	case <-s.clock.After(s.cfg.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return context.Canceled
	}

	order, err := Snapshot(s.doc, s.cfg)
	if err != nil {
		s.doc.Alert("Error: Could not determine the order total. Cannot proceed with spending check.")
		return fmt.Errorf("read order: %w", err)
	}

	reply, err := s.out.Send(ctx, messaging.ActionShowConfirmation, messaging.Sender{TabID: s.tab}, order)
	if err != nil {
		s.doc.Alert("Error communicating with the extension background. Please try reloading the page.")
		return fmt.Errorf("send %s: %w", messaging.ActionShowConfirmation, err)
	}
	if !reply.Success {
		s.doc.Alert("Error showing confirmation: " + reply.Error)
		return fmt.Errorf("%s: %s", messaging.ActionShowConfirmation, reply.Error)
	}
	s.log.Info("confirmation requested", "total", order.Total.StringFixed(2), "items", len(order.Items))
	return nil
}

// PerformOriginalAction нажимает настоящую кнопку и через TriggerDelay
// сообщает координатору, что действие запущено.
func (s *Scanner) PerformOriginalAction(order messaging.OrderSnapshot) error {
	s.mu.Lock()
	if s.state != StateIntercepted {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: trigger in %s", ErrState, st)
	}
	control := s.control
	s.state = StateActionTriggered
	s.mu.Unlock()

	if err := s.doc.Trigger(control); err != nil {
		s.setState(StateIntercepted)
		return fmt.Errorf("trigger original control: %w", err)
	}
	s.log.Info("original checkout action triggered")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.clock.After(s.cfg.TriggerDelay):
		case <-s.stop:
			// страницу закрыли раньше задержки: сообщаем сразу, иначе трата потеряется
			s.log.Debug("scanner closing, flushing order triggered")
		}
		reply, err := s.out.Send(context.Background(), messaging.ActionOrderTriggered, messaging.Sender{TabID: s.tab}, order)
		switch {
		case err != nil:
			s.log.Error("send order triggered", "err", err)
		case !reply.Success:
			s.log.Error("order triggered rejected", "err", reply.Error)
		default:
			s.log.Info("spend recorded")
		}
	}()
	return nil
}

// Deliver принимает сообщения координатора. Отвечает сразу, не дожидаясь
// orderTriggered, иначе шина координатора ждала бы сама себя.
func (s *Scanner) Deliver(_ context.Context, env messaging.Envelope) (messaging.Reply, error) {
	switch env.Action {
	case messaging.ActionTriggerOriginalOrder:
		var req messaging.TriggerRequest
		if err := env.Decode(&req); err != nil {
			return messaging.Fail(err), nil
		}
		if err := s.PerformOriginalAction(req.Order); err != nil {
			return messaging.Fail(err), nil
		}
		return messaging.OK(nil), nil
	default:
		return messaging.Fail(fmt.Errorf("%w: %s", messaging.ErrNoHandler, env.Action)), nil
	}
}

// Close прерывает ожидания и ждёт фоновые отправки. Уже нажатый заказ
// уходит координатору без задержки, а не теряется.
func (s *Scanner) Close() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}
