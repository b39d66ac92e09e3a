package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Ensure создаёт настройки пользователя с лимитом по умолчанию, если их ещё нет.
// Существующий лимит не перезаписывается.
func (r *Repo) Ensure(ctx context.Context, userID uuid.UUID, defaultLimit decimal.Decimal) (*Settings, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO user_settings (user_id, monthly_non_essential_limit)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET user_id = user_settings.user_id
		RETURNING user_id, monthly_non_essential_limit, created_at, updated_at
	`, userID, defaultLimit)

	var s Settings
	if err := row.Scan(&s.UserID, &s.Limit, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
