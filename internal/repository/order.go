package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id::text, user_id, items, subtotal, shipping_total, tax_amount,
		discount_total, total_amount, status, payment_method, slip_image, admin_note,
		applied_coupons, created_at`

	createOrderSQL = `INSERT INTO orders (id, user_id, items, subtotal, shipping_total,
		tax_amount, discount_total, total_amount, status, payment_method, slip_image,
		applied_coupons)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1::uuid`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR user_id = $1)
		ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $3,
			admin_note = CASE WHEN $4::text = '' THEN admin_note ELSE $4 END
		WHERE id = $1::uuid AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1::uuid)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order with a generated ID. The order items are
// serialized to JSON for storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, d order.Draft) (*order.Order, error) {
	itemsJSON, err := json.Marshal(d.Items)
	if err != nil {
		return nil, fmt.Errorf("marshaling order items: %w", err)
	}
	coupons := d.AppliedCoupons
	if coupons == nil {
		coupons = []string{}
	}

	o := &order.Order{
		ID:             uuid.NewString(),
		UserID:         d.UserID,
		Items:          d.Items,
		Subtotal:       d.Subtotal,
		ShippingTotal:  d.ShippingTotal,
		TaxAmount:      d.TaxAmount,
		DiscountTotal:  d.DiscountTotal,
		TotalAmount:    d.TotalAmount,
		Status:         d.Status,
		PaymentMethod:  d.PaymentMethod,
		SlipImage:      d.SlipImage,
		AppliedCoupons: coupons,
	}
	err = r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Subtotal, o.ShippingTotal, o.TaxAmount,
		o.DiscountTotal, o.TotalAmount, string(o.Status), o.PaymentMethod, o.SlipImage,
		coupons,
	).Scan(&o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return o, nil
}

// Get returns a single order by ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	if uuid.Validate(id) != nil {
		return nil, order.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, f.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus moves an order from one status to another only if it still
// has the expected status. An empty note keeps the existing admin note.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, note string) error {
	if uuid.Validate(id) != nil {
		return order.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to), note)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		status    string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &o.Subtotal, &o.ShippingTotal, &o.TaxAmount,
		&o.DiscountTotal, &o.TotalAmount, &status, &o.PaymentMethod, &o.SlipImage, &o.AdminNote,
		&o.AppliedCoupons, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	return o, nil
}
