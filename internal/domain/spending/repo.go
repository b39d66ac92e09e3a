package spending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNoSettings = errors.New("spending: user settings missing")

const lastResetKey = "last_reset"

// writer то, что нужно записи и сбросу; pgxpool.Pool подходит.
type writer interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repo struct {
	pool *pgxpool.Pool
	w    writer
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool, w: pool} }

// Snapshot лимит пользователя и траты за месяц. Строки месяца может ещё не быть, тогда нули.
func (r *Repo) Snapshot(ctx context.Context, userID uuid.UUID, month time.Time) (Budget, error) {
	var b Budget
	err := r.pool.QueryRow(ctx, `
		SELECT s.monthly_non_essential_limit,
		       COALESCE(m.essential_spent, 0),
		       COALESCE(m.non_essential_spent, 0)
		FROM user_settings s
		LEFT JOIN monthly_spending m
		       ON m.user_id = s.user_id AND m.month_start_date = $2
		WHERE s.user_id = $1
	`, userID, month).Scan(&b.Limit, &b.EssentialSpent, &b.NonEssentialSpent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, ErrNoSettings
		}
		return Budget{}, err
	}
	return b, nil
}

// Record одной транзакцией прибавляет amount к нужной корзине месяца (строка
// создаётся при первой трате) и пишет позиции заказа в журнал. Либо записано
// всё, либо ничего. Возвращает новые итоги и лимит.
func (r *Repo) Record(ctx context.Context, userID uuid.UUID, month time.Time, amount decimal.Decimal, essential bool, items []Item) (Budget, error) {
	tx, err := r.w.Begin(ctx)
	if err != nil {
		return Budget{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ess, non := decimal.Zero, amount
	if essential {
		ess, non = amount, decimal.Zero
	}
	var b Budget
	if err := tx.QueryRow(ctx, `
		INSERT INTO monthly_spending (user_id, month_start_date, essential_spent, non_essential_spent)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, month_start_date)
		DO UPDATE SET
			essential_spent     = monthly_spending.essential_spent + EXCLUDED.essential_spent,
			non_essential_spent = monthly_spending.non_essential_spent + EXCLUDED.non_essential_spent,
			updated_at          = now()
		RETURNING essential_spent, non_essential_spent
	`, userID, month, ess, non).Scan(&b.EssentialSpent, &b.NonEssentialSpent); err != nil {
		return Budget{}, fmt.Errorf("increment spending: %w", err)
	}

	if len(items) > 0 {
		batch := &pgx.Batch{}
		for _, it := range items {
			batch.Queue(`
				INSERT INTO purchase_items (user_id, month_start_date, name, price, quantity, essential)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, userID, month, it.Name, it.Price, it.Quantity, essential)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return Budget{}, fmt.Errorf("append purchase items: %w", err)
		}
	}

	err = tx.QueryRow(ctx,
		`SELECT monthly_non_essential_limit FROM user_settings WHERE user_id = $1`, userID,
	).Scan(&b.Limit)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, fmt.Errorf("read limit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Budget{}, fmt.Errorf("commit spending: %w", err)
	}
	return b, nil
}

// Reset обнуляет обе корзины месяца. Лимит и журнал покупок не трогает:
// журнал остаётся историей месяца для выгрузки.
func (r *Repo) Reset(ctx context.Context, userID uuid.UUID, month time.Time) error {
	if _, err := r.w.Exec(ctx, `
		INSERT INTO monthly_spending (user_id, month_start_date, essential_spent, non_essential_spent)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (user_id, month_start_date)
		DO UPDATE SET essential_spent = 0, non_essential_spent = 0, updated_at = now()
	`, userID, month); err != nil {
		return fmt.Errorf("reset spending: %w", err)
	}
	return nil
}

func (r *Repo) SetLimit(ctx context.Context, userID uuid.UUID, limit decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_settings
		SET monthly_non_essential_limit = $2, updated_at = now()
		WHERE user_id = $1
	`, userID, limit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoSettings
	}
	return nil
}

// LastReset время последнего обнуления; нулевое время, если его ещё не было.
func (r *Repo) LastReset(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := r.pool.QueryRow(ctx, `SELECT value FROM app_state WHERE key = $1`, lastResetKey).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

func (r *Repo) SetLastReset(ctx context.Context, t time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO app_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, lastResetKey, t)
	return err
}

// Items журнал покупок месяца в порядке записи.
func (r *Repo) Items(ctx context.Context, userID uuid.UUID, month time.Time) ([]Purchase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, month_start_date, name, price, quantity, essential, created_at
		FROM purchase_items
		WHERE user_id = $1 AND month_start_date = $2
		ORDER BY id
	`, userID, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.MonthStart, &p.Name, &p.Price, &p.Quantity, &p.Essential, &p.PurchasedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Month итоги и журнал месяца целиком (для выгрузки).
func (r *Repo) Month(ctx context.Context, userID uuid.UUID, month time.Time) (*Month, error) {
	b, err := r.Snapshot(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	items, err := r.Items(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	return &Month{
		UserID:            userID,
		MonthStart:        month,
		Limit:             b.Limit,
		EssentialSpent:    b.EssentialSpent,
		NonEssentialSpent: b.NonEssentialSpent,
		Items:             items,
	}, nil
}
