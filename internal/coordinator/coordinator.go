package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/infra/metrics"
	"github.com/Spok95/spendguard/internal/messaging"
	"github.com/Spok95/spendguard/internal/session"
)

var (
	ErrNoTab        = errors.New("coordinator: missing tab id")
	ErrNoSession    = errors.New("coordinator: no pending order data found")
	ErrAmbiguous    = errors.New("coordinator: cannot determine originating tab")
	ErrStale        = errors.New("coordinator: session closed before reply")
	ErrWindow       = errors.New("coordinator: confirmation window failed")
	ErrDelivery     = errors.New("coordinator: tab unreachable")
	ErrRemote       = errors.New("coordinator: budget store failed")
	ErrInvalidTotal = errors.New("coordinator: invalid order total")
	ErrConfirmed    = errors.New("coordinator: order already confirmed")
)

// confirmedTTL сколько подтверждённая сессия ждёт orderTriggered. Если сканер
// так и не ответил (страница ушла, вкладка зависла), сессия удаляется.
const confirmedTTL = 2 * time.Minute

// Store удалённое хранилище бюджета: Postgres (spending.Ledger) или HTTP API (budgetapi.Client).
type Store interface {
	Budget(ctx context.Context) (spending.Budget, error)
	Record(ctx context.Context, total decimal.Decimal, essential bool, items []spending.Item) (spending.Budget, error)
	SetLimit(ctx context.Context, limit decimal.Decimal) error
	Reset(ctx context.Context) error
}

// Windows открывает и закрывает отдельное окно подтверждения.
type Windows interface {
	Open(ctx context.Context, tab session.TabID) (session.WindowID, error)
	Close(ctx context.Context, win session.WindowID) error
}

// TabSender доставка сообщений сканеру вкладки (messaging.Tabs).
type TabSender interface {
	SendToTab(ctx context.Context, tabID string, env messaging.Envelope) (messaging.Reply, error)
}

// Loop очередь, в которой выполняются обработчики (messaging.Bus).
type Loop interface {
	Post(fn func()) bool
}

// Notifier сообщает о превышении лимита. Необязателен.
type Notifier interface {
	OverLimit(ctx context.Context, b spending.Budget, order messaging.OrderSnapshot) error
}

type Deps struct {
	Log      *slog.Logger
	Store    Store
	Windows  Windows
	Tabs     TabSender
	Loop     Loop
	Metrics  *metrics.Metrics
	Clock    clockwork.Clock
	Notifier Notifier
	// Fallback отдаётся вместо бюджета, если хранилище не ответило. nil значит без подстраховки.
	Fallback *spending.Budget
}

// Coordinator владеет таблицей сессий. Все методы, кроме Close, вызываются
// только из цикла шины: таблица без блокировок. Сетевые вызовы уходят в горутины,
// а их результат возвращается в цикл через Loop.Post.
type Coordinator struct {
	log      *slog.Logger
	sessions *session.Store
	store    Store
	windows  Windows
	tabs     TabSender
	loop     Loop
	m        *metrics.Metrics
	clock    clockwork.Clock
	notify   Notifier
	fallback *spending.Budget

	wg sync.WaitGroup
}

func New(d Deps) *Coordinator {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return &Coordinator{
		log:      d.Log,
		sessions: session.NewStore(),
		store:    d.Store,
		windows:  d.Windows,
		tabs:     d.Tabs,
		loop:     d.Loop,
		m:        d.Metrics,
		clock:    d.Clock,
		notify:   d.Notifier,
		fallback: d.Fallback,
	}
}

// Sessions таблица сессий. Читать только из цикла шины.
func (c *Coordinator) Sessions() *session.Store { return c.sessions }

// Close ждёт фоновые вызовы. Вызывать после остановки шины.
func (c *Coordinator) Close() { c.wg.Wait() }

// goThen выполняет work вне цикла; возвращённое продолжение выполняется в цикле.
func (c *Coordinator) goThen(work func() func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		cont := work()
		if !c.loop.Post(cont) {
			c.log.Warn("bus stopped, reply dropped")
		}
	}()
}

func (c *Coordinator) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Coordinator) syncGauge() {
	c.m.SessionsLive.Set(float64(c.sessions.Len()))
}

func (c *Coordinator) isCurrent(sess *session.Session) bool {
	cur, ok := c.sessions.Get(sess.TabID)
	return ok && cur == sess
}

func (c *Coordinator) closeWindow(win session.WindowID) {
	c.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.windows.Close(ctx, win); err != nil {
			c.log.Debug("close confirmation window", "window", win, "err", err)
		}
	})
}

// OpenConfirmation заводит сессию вкладки и открывает окно подтверждения.
// Повторный вызов для той же вкладки заменяет сессию, прежнее окно закрывается.
// Если окно не открылось, сессия удаляется.
func (c *Coordinator) OpenConfirmation(ctx context.Context, tab session.TabID, order messaging.OrderSnapshot, done func(error)) {
	if tab == "" {
		done(ErrNoTab)
		return
	}
	if prev, ok := c.sessions.Get(tab); ok && prev.HasWindow() {
		c.closeWindow(prev.WindowID)
	}
	sess := c.sessions.Put(session.Session{TabID: tab, Order: order, CreatedAt: c.clock.Now()})
	c.syncGauge()
	log := c.log.With("tab", tab)

	c.goThen(func() func() {
		win, err := c.windows.Open(ctx, tab)
		return func() {
			live := c.isCurrent(sess)
			if err != nil {
				if live {
					c.sessions.Delete(tab)
					c.syncGauge()
				}
				c.m.Confirmations.WithLabelValues("failed").Inc()
				log.Error("open confirmation window", "err", err)
				done(fmt.Errorf("%w: %v", ErrWindow, err))
				return
			}
			if !live {
				// вкладку закрыли или пришёл новый заказ, пока открывалось окно
				c.closeWindow(win)
				done(ErrStale)
				return
			}
			_ = c.sessions.SetWindow(tab, win)
			c.m.Confirmations.WithLabelValues("opened").Inc()
			log.Info("confirmation window opened", "window", win, "total", order.Total.StringFixed(2))
			done(nil)
		}
	})
}

// FetchSnapshot находит сессию окна (или единственную живую) и склеивает заказ
// со свежим бюджетом. Если сессия исчезла, пока шёл запрос, результат отбрасывается.
func (c *Coordinator) FetchSnapshot(ctx context.Context, win session.WindowID, done func(messaging.PopupData, error)) {
	sess, err := c.sessions.Resolve(win)
	if err != nil {
		if errors.Is(err, session.ErrAmbiguous) {
			done(messaging.PopupData{}, ErrAmbiguous)
			return
		}
		done(messaging.PopupData{}, ErrNoSession)
		return
	}
	if win != "" && sess.WindowID != win {
		c.log.Warn("window not recorded yet, using the only pending session", "window", win, "tab", sess.TabID)
	}

	c.goThen(func() func() {
		b, fallback, err := c.budget(ctx)
		return func() {
			if err != nil {
				done(messaging.PopupData{}, err)
				return
			}
			if !c.isCurrent(sess) {
				done(messaging.PopupData{}, ErrStale)
				return
			}
			done(messaging.PopupData{
				TabID:             string(sess.TabID),
				OrderTotal:        sess.Order.Total,
				Items:             sess.Order.Items,
				Essential:         sess.Order.Essential,
				Limit:             b.Limit,
				EssentialSpent:    b.EssentialSpent,
				NonEssentialSpent: b.NonEssentialSpent,
				Fallback:          fallback,
			}, nil)
		}
	})
}

// budget читает бюджет, при ошибке хранилища отдаёт встроенный набор.
func (c *Coordinator) budget(ctx context.Context) (spending.Budget, bool, error) {
	b, err := c.store.Budget(ctx)
	if err == nil {
		return b, false, nil
	}
	if c.fallback == nil {
		return spending.Budget{}, false, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	c.log.Warn("budget fetch failed, using bundled dataset", "err", err)
	c.m.SnapshotFallback.Inc()
	return *c.fallback, true, nil
}

// RelayDecision отмена просто удаляет сессию. Подтверждение отправляет сканеру
// команду нажать настоящую кнопку; сессия живёт до orderTriggered.
func (c *Coordinator) RelayDecision(ctx context.Context, tab session.TabID, decision messaging.Decision, done func(error)) {
	if tab == "" {
		done(ErrNoTab)
		return
	}
	log := c.log.With("tab", tab, "decision", decision)

	switch decision {
	case messaging.DecisionCancel:
		c.sessions.Delete(tab)
		c.syncGauge()
		c.m.Decisions.WithLabelValues(string(decision)).Inc()
		log.Info("order cancelled by user")
		done(nil)

	case messaging.DecisionConfirm:
		sess, ok := c.sessions.Get(tab)
		if !ok {
			done(ErrNoSession)
			return
		}
		if sess.Confirmed {
			done(ErrConfirmed)
			return
		}
		env, err := messaging.NewEnvelope(messaging.ActionTriggerOriginalOrder, messaging.Sender{}, messaging.TriggerRequest{Order: sess.Order})
		if err != nil {
			done(err)
			return
		}
		// с этого момента окно может закрыться само, сессия ждёт orderTriggered
		sess.Confirmed = true
		c.expireConfirmed(sess)
		c.m.Decisions.WithLabelValues(string(decision)).Inc()

		c.goThen(func() func() {
			reply, err := c.tabs.SendToTab(ctx, string(tab), env)
			if err == nil && !reply.Success {
				err = errors.New(reply.Error)
			}
			return func() {
				if err != nil {
					if c.isCurrent(sess) {
						c.sessions.Delete(tab)
						c.syncGauge()
					}
					log.Error("trigger original order", "err", err)
					done(fmt.Errorf("%w: %v", ErrDelivery, err))
					return
				}
				log.Info("original order triggered")
				done(nil)
			}
		})

	default:
		done(fmt.Errorf("unknown decision %q", decision))
	}
}

// expireConfirmed удаляет подтверждённую сессию, если orderTriggered не пришёл за confirmedTTL.
func (c *Coordinator) expireConfirmed(sess *session.Session) {
	c.clock.AfterFunc(confirmedTTL, func() {
		c.loop.Post(func() {
			if !c.isCurrent(sess) {
				return
			}
			c.sessions.Delete(sess.TabID)
			c.syncGauge()
			c.m.Persists.WithLabelValues("expired").Inc()
			c.log.Warn("confirmed order never triggered, session dropped", "tab", sess.TabID)
		})
	})
}

// PersistSpend записывает трату после того, как сканер нажал настоящую кнопку.
// Сессия удаляется сразу, чем бы ни кончилась запись, поэтому повторный
// orderTriggered для той же вкладки трату не задвоит.
// Записывается факт нажатия, а не подтверждение магазина: отклонённая оплата
// всё равно попадёт в траты.
func (c *Coordinator) PersistSpend(ctx context.Context, tab session.TabID, order messaging.OrderSnapshot, done func(messaging.PersistResult, error)) {
	if tab == "" {
		done(messaging.PersistResult{}, ErrNoTab)
		return
	}
	sess, ok := c.sessions.Delete(tab)
	c.syncGauge()
	log := c.log.With("tab", tab)
	if !ok {
		c.m.Persists.WithLabelValues("rejected").Inc()
		log.Warn("order triggered without pending session")
		done(messaging.PersistResult{}, ErrNoSession)
		return
	}
	if order.Total.IsNegative() {
		c.m.Persists.WithLabelValues("rejected").Inc()
		log.Error("invalid order total", "total", order.Total.String())
		done(messaging.PersistResult{}, fmt.Errorf("%w: %s", ErrInvalidTotal, order.Total))
		return
	}
	// корзина берётся из сессии: её видел пользователь в окне подтверждения
	essential := sess.Order.Essential
	items := toItems(order.Items)

	c.goThen(func() func() {
		b, err := c.store.Record(ctx, order.Total, essential, items)
		if err == nil && !essential && c.notify != nil &&
			b.Limit.IsPositive() && b.NonEssentialSpent.GreaterThan(b.Limit) {
			if nerr := c.notify.OverLimit(ctx, b, order); nerr != nil {
				log.Warn("over-limit notification failed", "err", nerr)
			}
		}
		return func() {
			if err != nil {
				c.m.Persists.WithLabelValues("error").Inc()
				log.Error("persist spend", "err", err)
				done(messaging.PersistResult{}, fmt.Errorf("%w: %v", ErrRemote, err))
				return
			}
			c.m.Persists.WithLabelValues("ok").Inc()
			log.Info("spend recorded",
				"total", order.Total.StringFixed(2),
				"essential", essential,
				"non_essential_spent", b.NonEssentialSpent.StringFixed(2),
			)
			done(messaging.PersistResult{EssentialSpent: b.EssentialSpent, NonEssentialSpent: b.NonEssentialSpent}, nil)
		}
	})
}

// TabRemoved вкладка закрыта: сессия удаляется, окно подтверждения закрывается.
func (c *Coordinator) TabRemoved(tab session.TabID) bool {
	sess, ok := c.sessions.Delete(tab)
	if !ok {
		return false
	}
	c.syncGauge()
	if sess.HasWindow() {
		c.closeWindow(sess.WindowID)
	}
	c.log.Info("tab closed, session removed", "tab", tab)
	return true
}

// WindowRemoved окно подтверждения закрыто. Без решения сессия удаляется,
// подтверждённая остаётся ждать orderTriggered.
func (c *Coordinator) WindowRemoved(win session.WindowID) bool {
	sess, ok := c.sessions.ByWindow(win)
	if !ok {
		return false
	}
	if sess.Confirmed {
		sess.WindowID = ""
		c.log.Debug("confirmation window closed after confirm", "tab", sess.TabID, "window", win)
		return true
	}
	c.sessions.DeleteByWindow(win)
	c.syncGauge()
	c.log.Info("confirmation window closed, session removed", "tab", sess.TabID, "window", win)
	return true
}

// OptionsData бюджет для страницы настроек. Без подстраховки: там важна точность.
func (c *Coordinator) OptionsData(ctx context.Context, done func(messaging.OptionsData, error)) {
	c.spawn(func() {
		b, err := c.store.Budget(ctx)
		if err != nil {
			done(messaging.OptionsData{}, fmt.Errorf("%w: %v", ErrRemote, err))
			return
		}
		done(messaging.OptionsData{Limit: b.Limit, EssentialSpent: b.EssentialSpent, NonEssentialSpent: b.NonEssentialSpent}, nil)
	})
}

func (c *Coordinator) SetLimit(ctx context.Context, limit decimal.Decimal, done func(error)) {
	if limit.IsNegative() {
		done(fmt.Errorf("limit %s: must not be negative", limit))
		return
	}
	c.spawn(func() {
		if err := c.store.SetLimit(ctx, limit); err != nil {
			done(fmt.Errorf("%w: %v", ErrRemote, err))
			return
		}
		c.log.Info("monthly limit updated", "limit", limit.StringFixed(2))
		done(nil)
	})
}

func (c *Coordinator) ResetSpending(ctx context.Context, done func(error)) {
	c.spawn(func() {
		if err := c.store.Reset(ctx); err != nil {
			done(fmt.Errorf("%w: %v", ErrRemote, err))
			return
		}
		c.log.Info("monthly spending reset by user")
		done(nil)
	})
}

func toItems(in []messaging.LineItem) []spending.Item {
	out := make([]spending.Item, 0, len(in))
	for _, it := range in {
		out = append(out, spending.Item{Name: it.Name, Price: it.Price, Quantity: it.Quantity})
	}
	return out
}
