package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypeFixed subtracts a flat currency amount from the order.
	TypeFixed Type = "fixed"
	// TypePercent subtracts a percentage of the item subtotal.
	TypePercent Type = "percent"
	// TypeFreeShipping waives the shipping total. Value is ignored.
	TypeFreeShipping Type = "free_shipping"
)

// Valid reports whether t is a known coupon type.
func (t Type) Valid() bool {
	switch t {
	case TypeFixed, TypePercent, TypeFreeShipping:
		return true
	default:
		return false
	}
}

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid or expired coupon code")
	// ErrAlreadyExists is returned when creating a coupon whose code is taken.
	ErrAlreadyExists = errors.New("coupon code already exists")
)

var hundred = decimal.NewFromInt(100)

// Coupon is a named promotional rule applied at checkout.
type Coupon struct {
	Code      string
	Type      Type
	Value     decimal.Decimal
	Active    bool
	CreatedAt time.Time
}

// NormalizeCode trims and upper-cases user input so lookups are
// case-insensitive while codes are always stored upper-cased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidationError describes why a coupon definition was refused.
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid coupon " + e.Code + ": " + e.Reason
}

// Validate normalizes the coupon in place and checks its definition.
// Free shipping coupons always carry a zero value.
func (c *Coupon) Validate() error {
	c.Code = NormalizeCode(c.Code)
	if c.Code == "" {
		return &ValidationError{Reason: "code is required"}
	}
	for _, r := range c.Code {
		if !isCodeRune(r) {
			return &ValidationError{Code: c.Code, Reason: "code may contain only A-Z, 0-9, '-' and '_'"}
		}
	}

	switch c.Type {
	case TypeFixed:
		if !c.Value.IsPositive() {
			return &ValidationError{Code: c.Code, Reason: "fixed value must be greater than 0"}
		}
	case TypePercent:
		if !c.Value.IsPositive() || c.Value.GreaterThan(hundred) {
			return &ValidationError{Code: c.Code, Reason: "percent value must be in (0, 100]"}
		}
	case TypeFreeShipping:
		c.Value = decimal.Zero
	default:
		return &ValidationError{Code: c.Code, Reason: "unsupported type " + string(c.Type)}
	}
	return nil
}

func isCodeRune(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// Codes returns the codes of the given coupons in order.
func Codes(coupons []Coupon) []string {
	out := make([]string, len(coupons))
	for i, c := range coupons {
		out[i] = c.Code
	}
	return out
}

// Repository provides lookup and admin mutation of coupons.
type Repository interface {
	// FindByCode returns the coupon with the given code regardless of its
	// active flag, or ErrInvalidCoupon.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	SetActive(ctx context.Context, code string, active bool) error
	// Codes returns every stored code, active or not.
	Codes(ctx context.Context) ([]string, error)
}

// Registry resolves codes entered at checkout to active coupons.
type Registry interface {
	FindActive(ctx context.Context, code string) (*Coupon, error)
}
