package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, type, value, active, created_at
		FROM coupons WHERE code = UPPER($1)`

	listCouponsSQL = `SELECT code, type, value, active, created_at
		FROM coupons ORDER BY created_at, code`

	createCouponSQL = `INSERT INTO coupons (code, type, value, active)
		VALUES ($1, $2, $3, $4) RETURNING created_at`

	setCouponActiveSQL = `UPDATE coupons SET active = $2 WHERE code = $1`

	listCouponCodesSQL = `SELECT code FROM coupons`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, active or not.
// Returns coupon.ErrInvalidCoupon when no coupon has that code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// List returns every coupon in creation order.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create stores a new coupon and sets its CreatedAt.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, createCouponSQL, c.Code, string(c.Type), c.Value, c.Active).
		Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrAlreadyExists
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// SetActive toggles the active flag of a coupon.
func (r *CouponRepository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, setCouponActiveSQL, code, active)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrInvalidCoupon
	}
	return nil
}

// Codes returns every stored coupon code.
func (r *CouponRepository) Codes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(&c.Code, &typ, &c.Value, &c.Active, &c.CreatedAt)
	c.Type = coupon.Type(typ)
	return c, err
}
