package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/settings"
)

const (
	getSettingSQL = `SELECT value FROM settings WHERE key = $1`

	setSettingSQL = `INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
)

var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository implements settings.Repository backed by PostgreSQL.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (decimal.Decimal, error) {
	var v decimal.Decimal
	if err := r.pool.QueryRow(ctx, getSettingSQL, key).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, settings.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("getting setting %q: %w", key, err)
	}
	return v, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key string, value decimal.Decimal) error {
	if _, err := r.pool.Exec(ctx, setSettingSQL, key, value); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}
