package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending       Status = "pending"
	StatusPaid          Status = "paid"
	StatusVerified      Status = "verified"
	StatusShipped       Status = "shipped"
	StatusIssueReported Status = "issue_reported"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusVerified, StatusShipped, StatusIssueReported:
		return true
	default:
		return false
	}
}

// PaymentPromptPay is the only payment method the storefront accepts.
const PaymentPromptPay = "promptpay"

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Item is a frozen copy of a cart line at the moment the order was placed.
type Item struct {
	ProductID       string          `json:"productId"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	Quantity        int             `json:"quantity"`
}

// Order is the permanent financial record of a checkout. The monetary fields
// are never recomputed after creation.
type Order struct {
	ID             string
	UserID         string
	Items          []Item
	Subtotal       decimal.Decimal
	ShippingTotal  decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountTotal  decimal.Decimal
	TotalAmount    decimal.Decimal
	Status         Status
	PaymentMethod  string
	SlipImage      string
	AdminNote      string
	AppliedCoupons []string
	CreatedAt      time.Time
}

// Draft carries everything needed to persist a new order. The store assigns
// the ID and creation timestamp.
type Draft struct {
	UserID         string
	Items          []Item
	Subtotal       decimal.Decimal
	ShippingTotal  decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountTotal  decimal.Decimal
	TotalAmount    decimal.Decimal
	Status         Status
	PaymentMethod  string
	SlipImage      string
	AppliedCoupons []string
}

// Filter narrows order listings. Zero values match everything.
type Filter struct {
	UserID string
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, d Draft) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	// List returns matching orders, newest first.
	List(ctx context.Context, f Filter) ([]Order, error)
	// UpdateStatus moves an order from one status to another. It returns
	// ErrStatusConflict when the stored status no longer equals from.
	UpdateStatus(ctx context.Context, id string, from, to Status, note string) error
}

// EventType names an order lifecycle event.
type EventType string

const (
	EventPlaced        EventType = "order.placed"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is published after an order is created or changes status.
type Event struct {
	Type  EventType
	Order Order
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
