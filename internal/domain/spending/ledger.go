package spending

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// Ledger бюджет одного пользователя поверх Repo: сам считает текущий месяц.
type Ledger struct {
	repo  *Repo
	user  uuid.UUID
	clock clockwork.Clock
	loc   *time.Location
}

func NewLedger(repo *Repo, user uuid.UUID, clock clockwork.Clock, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{repo: repo, user: user, clock: clock, loc: loc}
}

func (l *Ledger) month() time.Time {
	return MonthStart(l.clock.Now().In(l.loc))
}

func (l *Ledger) Budget(ctx context.Context) (Budget, error) {
	return l.repo.Snapshot(ctx, l.user, l.month())
}

// Record прибавляет заказ к месяцу и пишет позиции в журнал одной транзакцией.
func (l *Ledger) Record(ctx context.Context, total decimal.Decimal, essential bool, items []Item) (Budget, error) {
	return l.repo.Record(ctx, l.user, l.month(), total, essential, items)
}

func (l *Ledger) SetLimit(ctx context.Context, limit decimal.Decimal) error {
	if limit.IsNegative() {
		return fmt.Errorf("limit %s: must not be negative", limit)
	}
	return l.repo.SetLimit(ctx, l.user, limit)
}

func (l *Ledger) Reset(ctx context.Context) error {
	return l.repo.Reset(ctx, l.user, l.month())
}

func (l *Ledger) LastReset(ctx context.Context) (time.Time, error) {
	return l.repo.LastReset(ctx)
}

func (l *Ledger) SetLastReset(ctx context.Context, t time.Time) error {
	return l.repo.SetLastReset(ctx, t)
}

func (l *Ledger) Month(ctx context.Context) (*Month, error) {
	return l.repo.Month(ctx, l.user, l.month())
}
