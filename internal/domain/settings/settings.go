// Package settings holds store-wide configuration that admins can change at
// runtime, currently the flat tax rate.
package settings

import (
	"context"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// KeyTaxRate is the settings key of the tax rate in percent.
const KeyTaxRate = "tax_rate"

// DefaultTaxRate is used until an admin stores another rate.
var DefaultTaxRate = decimal.NewFromInt(7)

var (
	// ErrNotFound is returned by a Repository for an unknown key.
	ErrNotFound = errors.New("setting not found")
	// ErrInvalidTaxRate is returned for rates outside [0, 100].
	ErrInvalidTaxRate = errors.New("tax rate must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// Repository persists decimal settings by key.
type Repository interface {
	Get(ctx context.Context, key string) (decimal.Decimal, error)
	Set(ctx context.Context, key string, value decimal.Decimal) error
}

// Store caches the tax rate in memory. Reads never touch the repository.
type Store struct {
	repo Repository
	rate atomic.Pointer[decimal.Decimal]
}

// NewStore creates a Store that reports fallback until Load succeeds.
func NewStore(repo Repository, fallback decimal.Decimal) *Store {
	s := &Store{repo: repo}
	s.rate.Store(&fallback)
	return s
}

// Load reads the persisted tax rate. A missing row keeps the fallback.
func (s *Store) Load(ctx context.Context) error {
	rate, err := s.repo.Get(ctx, KeyTaxRate)
	switch {
	case errors.Is(err, ErrNotFound):
		zctx.From(ctx).Info("Tax rate not configured, using default",
			zap.String("rate", s.TaxRate().String()),
		)
		return nil
	case err != nil:
		return errors.Wrap(err, "get tax rate")
	}
	s.rate.Store(&rate)
	return nil
}

// TaxRate returns the current tax rate in percent.
func (s *Store) TaxRate() decimal.Decimal {
	return *s.rate.Load()
}

// SetTaxRate validates, persists and then publishes a new tax rate.
// Orders already placed keep the rate they were quoted with.
func (s *Store) SetTaxRate(ctx context.Context, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return ErrInvalidTaxRate
	}
	if err := s.repo.Set(ctx, KeyTaxRate, rate); err != nil {
		return errors.Wrap(err, "store tax rate")
	}
	s.rate.Store(&rate)

	zctx.From(ctx).Info("Tax rate updated", zap.String("rate", rate.String()))
	return nil
}
