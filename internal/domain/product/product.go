package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

var hundred = decimal.NewFromInt(100)

// Product represents a catalog item available for purchase.
type Product struct {
	ID              string
	Name            string
	Description     string
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	Category        string
	Stock           int
	ShippingCost    decimal.Decimal
	Image           string
	Images          []string
}

// NetPrice returns the unit price after the product's own discount.
func (p Product) NetPrice() decimal.Decimal {
	return p.Price.Mul(hundred.Sub(p.DiscountPercent)).Div(hundred)
}

// ValidationError describes a product field that violates catalog rules.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid product " + e.Field + ": " + e.Reason
}

// Validate checks the invariants every catalog entry must hold.
func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case p.Category == "":
		return &ValidationError{Field: "category", Reason: "required"}
	case !p.Price.IsPositive():
		return &ValidationError{Field: "price", Reason: "must be greater than 0"}
	case p.DiscountPercent.IsNegative() || p.DiscountPercent.GreaterThan(hundred):
		return &ValidationError{Field: "discountPercent", Reason: "must be between 0 and 100"}
	case p.Stock < 0:
		return &ValidationError{Field: "stock", Reason: "must not be negative"}
	case p.ShippingCost.IsNegative():
		return &ValidationError{Field: "shippingCost", Reason: "must not be negative"}
	}
	return nil
}

// Repository defines read and admin write operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Upsert(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
