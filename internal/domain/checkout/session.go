// Package checkout implements the per-user checkout flow: a cart of frozen
// product snapshots, applied coupons, and the review, payment and
// confirmation state machine that produces orders.
package checkout

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// State is a checkout session state.
type State string

const (
	// StateReview is the initial state: the cart and coupons may change.
	StateReview State = "review"
	// StatePayment holds the frozen quote while waiting for payment proof.
	StatePayment State = "payment"
	// StateConfirmed is terminal: the order has been stored.
	StateConfirmed State = "confirmed"
)

// DefaultVerifyDelay is the simulated payment verification latency.
const DefaultVerifyDelay = 3 * time.Second

// TaxRates supplies the current flat tax rate in percent.
type TaxRates interface {
	TaxRate() decimal.Decimal
}

// Config holds the collaborators of a Session.
type Config struct {
	Coupons     coupon.Registry
	Orders      order.Repository
	Rates       TaxRates
	VerifyDelay time.Duration
	// OnSettled, if set, is called once per confirmation with its outcome,
	// before waiters are released.
	OnSettled func(ctx context.Context, o *order.Order, err error)
}

// Session is one user's in-progress checkout. It is safe for concurrent use;
// the verification delay of ConfirmPayment runs without holding the lock.
type Session struct {
	userID string
	cfg    Config

	mu      sync.Mutex
	state   State
	cart    Cart
	coupons []coupon.Coupon
	quote   pricing.Breakdown
	slip    string
	pending *Confirmation
	placed  *order.Order
	lastErr error
}

// NewSession creates a session in the review state.
func NewSession(userID string, cfg Config) *Session {
	return &Session{
		userID: userID,
		cfg:    cfg,
		state:  StateReview,
	}
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	UserID           string
	State            State
	Items            []Item
	Coupons          []string
	Breakdown        pricing.Breakdown
	SlipAcknowledged bool
	Pending          bool
	// Placed is the last order this session produced, if any.
	Placed *order.Order
	// LastError is the most recent persistence failure of a confirmation.
	LastError error
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		UserID:           s.userID,
		State:            s.state,
		Items:            s.cart.Items(),
		Coupons:          coupon.Codes(s.coupons),
		Breakdown:        s.breakdownLocked(),
		SlipAcknowledged: s.slip != "",
		Pending:          s.pending != nil,
		Placed:           s.placed,
		LastError:        s.lastErr,
	}
}

// evictable reports whether the session holds nothing worth keeping once
// idle: it is not waiting for payment and no confirmation is in flight.
func (s *Session) evictable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StatePayment && s.pending == nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddItem adds a snapshot of p to the cart.
func (s *Session) AddItem(p product.Product, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("add item", StateReview); err != nil {
		return err
	}
	return s.cart.Add(p, qty)
}

// SetQuantity changes the quantity of a cart item.
func (s *Session) SetQuantity(productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("set quantity", StateReview); err != nil {
		return err
	}
	return s.cart.SetQuantity(productID, qty)
}

// RemoveItem drops a cart item.
func (s *Session) RemoveItem(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("remove item", StateReview); err != nil {
		return err
	}
	return s.cart.Remove(productID)
}

// ClearCart empties the cart and the applied coupon set.
func (s *Session) ClearCart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("clear cart", StateReview); err != nil {
		return err
	}
	s.cart.Clear()
	s.coupons = nil
	return nil
}

// ApplyCoupon looks the code up in the registry and appends it to the
// applied set. Codes are matched case-insensitively.
func (s *Session) ApplyCoupon(ctx context.Context, code string) error {
	code = coupon.NormalizeCode(code)
	if code == "" {
		return coupon.ErrInvalidCoupon
	}

	if err := s.canApply(code); err != nil {
		return err
	}

	// The registry may hit the database; the lock is not held across it.
	c, err := s.cfg.Coupons.FindActive(ctx, code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.canApplyLocked(code); err != nil {
		return err
	}
	s.coupons = append(s.coupons, *c)
	return nil
}

func (s *Session) canApply(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canApplyLocked(code)
}

func (s *Session) canApplyLocked(code string) error {
	if err := s.requireLocked("apply coupon", StateReview); err != nil {
		return err
	}
	if s.appliedLocked(code) >= 0 {
		return ErrCouponAlreadyApplied
	}
	return nil
}

// RemoveCoupon removes an applied coupon.
func (s *Session) RemoveCoupon(code string) error {
	code = coupon.NormalizeCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("remove coupon", StateReview); err != nil {
		return err
	}
	i := s.appliedLocked(code)
	if i < 0 {
		return ErrCouponNotApplied
	}
	s.coupons = slices.Delete(s.coupons, i, i+1)
	return nil
}

// Breakdown returns the financial breakdown. In review it is recomputed from
// the cart, coupons and current tax rate on every call; in payment it is the
// quote frozen by ConfirmReview.
func (s *Session) Breakdown() pricing.Breakdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakdownLocked()
}

// Quote returns the amount to pay. It is only available in payment state.
func (s *Session) Quote() (pricing.Breakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("quote", StatePayment); err != nil {
		return pricing.Breakdown{}, err
	}
	return s.quote, nil
}

// ConfirmReview moves the session to payment. Every applied coupon is looked
// up again so a coupon deactivated since it was applied cannot reach an
// order. The coupon set, tax rate and resulting quote are frozen.
func (s *Session) ConfirmReview(ctx context.Context) (pricing.Breakdown, error) {
	for {
		codes, err := s.reviewCodes()
		if err != nil {
			return pricing.Breakdown{}, err
		}

		current := make([]coupon.Coupon, 0, len(codes))
		for _, code := range codes {
			c, err := s.cfg.Coupons.FindActive(ctx, code)
			if err != nil {
				return pricing.Breakdown{}, errors.Wrapf(err, "coupon %s", code)
			}
			current = append(current, *c)
		}

		s.mu.Lock()
		if err := s.reviewableLocked(); err != nil {
			s.mu.Unlock()
			return pricing.Breakdown{}, err
		}
		if !slices.Equal(codes, coupon.Codes(s.coupons)) {
			// Coupons changed during the lookups; validate the new set.
			s.mu.Unlock()
			continue
		}
		s.coupons = current
		s.quote = pricing.Compute(s.cart.Lines(), s.coupons, s.cfg.Rates.TaxRate())
		s.state = StatePayment
		q := s.quote
		s.mu.Unlock()
		return q, nil
	}
}

// reviewCodes returns the applied coupon codes if the session can leave review.
func (s *Session) reviewCodes() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reviewableLocked(); err != nil {
		return nil, err
	}
	return coupon.Codes(s.coupons), nil
}

func (s *Session) reviewableLocked() error {
	if err := s.requireLocked("confirm review", StateReview); err != nil {
		return err
	}
	if s.cart.Len() == 0 {
		return ErrEmptyCart
	}
	return nil
}

// AcknowledgePaymentProof records an opaque reference to the uploaded slip.
// A later call replaces the reference.
func (s *Session) AcknowledgePaymentProof(slipRef string) error {
	slipRef = strings.TrimSpace(slipRef)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("acknowledge payment proof", StatePayment); err != nil {
		return err
	}
	if s.pending != nil {
		return ErrConfirmationPending
	}
	if slipRef == "" {
		return ErrPaymentProofMissing
	}
	s.slip = slipRef
	return nil
}

// ConfirmPayment starts the asynchronous confirmation and returns at once.
//
// After the verification delay the order is created with status verified.
// On success the cart, coupons and slip are cleared and the session becomes
// confirmed. If the store fails the session is left untouched in payment and
// the error is delivered through the Confirmation. Cancelling ctx or the
// Confirmation during the delay creates no order and changes nothing.
func (s *Session) ConfirmPayment(ctx context.Context) (*Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("confirm payment", StatePayment); err != nil {
		return nil, err
	}
	if s.pending != nil {
		return nil, ErrConfirmationPending
	}
	if s.slip == "" {
		return nil, ErrPaymentProofMissing
	}

	c := newConfirmation()
	s.pending = c
	s.lastErr = nil
	go s.confirm(ctx, c, s.draftLocked())
	return c, nil
}

// Abandon cancels an in-flight confirmation, if any. It reports whether a
// confirmation was cancelled. An order already being stored is not undone.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	c := s.pending
	s.mu.Unlock()

	if c == nil {
		return false
	}
	return c.Cancel()
}

func (s *Session) confirm(ctx context.Context, c *Confirmation, draft order.Draft) {
	timer := time.NewTimer(s.cfg.VerifyDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-c.cancelled:
	case <-ctx.Done():
		c.Cancel()
	}
	if !c.begin() {
		s.settle(ctx, c, nil, ErrConfirmationCancelled)
		return
	}

	o, err := s.cfg.Orders.Create(context.WithoutCancel(ctx), draft)
	if err != nil {
		s.settle(ctx, c, nil, errors.Wrap(err, "create order"))
		return
	}
	s.settle(ctx, c, o, nil)
}

func (s *Session) settle(ctx context.Context, c *Confirmation, o *order.Order, err error) {
	s.mu.Lock()
	if s.pending == c {
		s.pending = nil
	}
	switch {
	case err == nil:
		s.cart.Clear()
		s.coupons = nil
		s.slip = ""
		s.quote = pricing.Breakdown{}
		s.state = StateConfirmed
		s.placed = o
	case !errors.Is(err, ErrConfirmationCancelled):
		s.lastErr = err
	}
	s.mu.Unlock()

	if s.cfg.OnSettled != nil {
		s.cfg.OnSettled(ctx, o, err)
	}
	c.resolve(o, err)
}

func (s *Session) draftLocked() order.Draft {
	q := s.quote
	return order.Draft{
		UserID:         s.userID,
		Items:          s.cart.OrderItems(),
		Subtotal:       q.Subtotal,
		ShippingTotal:  q.ShippingTotal,
		TaxAmount:      q.TaxAmount,
		DiscountTotal:  q.DiscountTotal,
		TotalAmount:    q.TotalAmount,
		Status:         order.StatusVerified,
		PaymentMethod:  order.PaymentPromptPay,
		SlipImage:      s.slip,
		AppliedCoupons: slices.Clone(q.AppliedCoupons),
	}
}

func (s *Session) breakdownLocked() pricing.Breakdown {
	switch s.state {
	case StatePayment:
		return s.quote
	case StateConfirmed:
		return pricing.Compute(nil, nil, decimal.Zero)
	default:
		return pricing.Compute(s.cart.Lines(), s.coupons, s.cfg.Rates.TaxRate())
	}
}

func (s *Session) appliedLocked(code string) int {
	return slices.IndexFunc(s.coupons, func(c coupon.Coupon) bool {
		return c.Code == code
	})
}

func (s *Session) requireLocked(op string, want State) error {
	if s.state != want {
		return &StateError{Op: op, State: s.state}
	}
	return nil
}
