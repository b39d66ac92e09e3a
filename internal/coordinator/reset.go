package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/infra/metrics"
)

// maxResetWait страховка: проверяем не реже раза в месяц, даже если расчёт границы ошибся.
const maxResetWait = 31 * 24 * time.Hour

type ResetStore interface {
	LastReset(ctx context.Context) (time.Time, error)
	SetLastReset(ctx context.Context, t time.Time) error
	Reset(ctx context.Context) error
}

// Resetter обнуляет траты при смене календарного месяца.
type Resetter struct {
	store ResetStore
	clock clockwork.Clock
	loc   *time.Location
	log   *slog.Logger
	m     *metrics.Metrics
}

func NewResetter(store ResetStore, clock clockwork.Clock, loc *time.Location, log *slog.Logger, m *metrics.Metrics) *Resetter {
	if loc == nil {
		loc = time.UTC
	}
	return &Resetter{store: store, clock: clock, loc: loc, log: log, m: m}
}

// Check сравнивает месяц последнего обнуления с текущим и при смене месяца
// обнуляет траты. Если обнулений ещё не было, только запоминает текущее время.
func (r *Resetter) Check(ctx context.Context) (bool, error) {
	now := r.clock.Now().In(r.loc)
	last, err := r.store.LastReset(ctx)
	if err != nil {
		return false, fmt.Errorf("read last reset: %w", err)
	}
	if last.IsZero() {
		if err := r.store.SetLastReset(ctx, now); err != nil {
			return false, fmt.Errorf("init last reset: %w", err)
		}
		r.log.Info("monthly reset initialised", "at", now)
		return false, nil
	}
	if spending.SameMonth(last, now) {
		r.log.Debug("no reset needed, still the same month")
		return false, nil
	}

	if err := r.store.Reset(ctx); err != nil {
		return false, fmt.Errorf("reset spending: %w", err)
	}
	if err := r.store.SetLastReset(ctx, now); err != nil {
		return true, fmt.Errorf("save last reset: %w", err)
	}
	r.m.MonthlyResets.Inc()
	r.log.Info("new month, spending reset", "month", now.Format("2006-01"))
	return true, nil
}

// NextWait сколько ждать до начала следующего месяца, но не больше maxResetWait.
func (r *Resetter) NextWait() time.Duration {
	now := r.clock.Now().In(r.loc)
	d := spending.NextMonthStart(now).Sub(now)
	if d > maxResetWait {
		d = maxResetWait
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Run проверяет сразу, потом просыпается на границе каждого месяца.
// Ошибки проверки логируются, расписание не прерывается.
func (r *Resetter) Run(ctx context.Context) error {
	for {
		if _, err := r.Check(ctx); err != nil {
			r.log.Error("monthly reset check failed", "err", err)
		}
		wait := r.NextWait()
		r.log.Debug("next monthly reset check", "in", wait)

		timer := r.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}
	}
}
