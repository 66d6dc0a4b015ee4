package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Sentinel errors for admin order actions.
var (
	ErrStatusConflict = errors.New("order status changed concurrently")
	ErrNoteRequired   = errors.New("issue note is required")
)

// TransitionError indicates an admin action is not allowed from the order's
// current status.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// CanTransition reports whether an admin action may move an order from one
// status to another. Verification ships verified orders; an issue may be
// reported on any order that does not already have one.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusShipped:
		return from == StatusVerified
	case StatusIssueReported:
		return from.Valid() && from != StatusIssueReported
	default:
		return false
	}
}

// Service encapsulates back-office order management.
type Service struct {
	orders Repository
	events Publisher
}

// NewService creates an order Service. A nil publisher discards events.
func NewService(orders Repository, events Publisher) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		orders: orders,
		events: events,
	}
}

// List returns orders matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Verify marks a verified order as shipped.
func (s *Service) Verify(ctx context.Context, id string) (*Order, error) {
	return s.transition(ctx, id, StatusShipped, "")
}

// ReportIssue flags an order and records the admin note.
func (s *Service) ReportIssue(ctx context.Context, id, note string) (*Order, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrNoteRequired
	}
	return s.transition(ctx, id, StatusIssueReported, note)
}

func (s *Service) transition(ctx context.Context, id string, to Status, note string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !CanTransition(o.Status, to) {
		return nil, &TransitionError{OrderID: id, From: o.Status, To: to}
	}

	if err := s.orders.UpdateStatus(ctx, id, o.Status, to, note); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	from := o.Status
	o.Status = to
	if note != "" {
		o.AdminNote = note
	}

	if err := s.events.Publish(ctx, Event{Type: EventStatusChanged, Order: *o}); err != nil {
		zctx.From(ctx).Warn("Publish order event failed",
			zap.String("order_id", id),
			zap.Error(err),
		)
	}
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return o, nil
}
