package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/checkout"

// DefaultSessionTTL is how long an idle session survives eviction.
const DefaultSessionTTL = 2 * time.Hour

// Options tunes a Service. Zero values select defaults.
type Options struct {
	VerifyDelay time.Duration
	// SessionTTL is the idle time after which a session in review or
	// confirmed state is dropped by EvictIdle.
	SessionTTL     time.Duration
	Events         order.Publisher
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service owns one checkout session per user and adapts them to catalog
// lookups, order events and telemetry.
type Service struct {
	products product.Repository
	coupons  coupon.Registry
	orders   order.Repository
	rates    TaxRates
	events   order.Publisher
	delay    time.Duration
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*tracked

	tracer   trace.Tracer
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

// NewService creates a checkout Service.
func NewService(
	products product.Repository,
	coupons coupon.Registry,
	orders order.Repository,
	rates TaxRates,
	opts Options,
) (*Service, error) {
	if opts.VerifyDelay <= 0 {
		opts.VerifyDelay = DefaultVerifyDelay
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Events == nil {
		opts.Events = order.NopPublisher{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	outcomes, err := meter.Int64Counter("checkout.confirmations",
		metric.WithDescription("Payment confirmations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create confirmations counter")
	}
	duration, err := meter.Float64Histogram("checkout.confirmation.duration",
		metric.WithDescription("Time from payment confirmation to outcome"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create confirmation histogram")
	}

	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		rates:    rates,
		events:   opts.Events,
		delay:    opts.VerifyDelay,
		ttl:      opts.SessionTTL,
		now:      time.Now,
		sessions: make(map[string]*tracked),
		tracer:   opts.TracerProvider.Tracer(instrumentationName),
		outcomes: outcomes,
		duration: duration,
	}, nil
}

// tracked is a session plus the time it was last used.
type tracked struct {
	sess *Session
	seen time.Time
}

// Snapshot returns the user's session view. A confirmed session is still
// reported so clients can pick up the placed order. A user without a session
// gets an empty review view; no session is created.
func (s *Service) Snapshot(userID string) Snapshot {
	sess := s.lookup(userID)
	if sess == nil {
		return Snapshot{
			UserID:    userID,
			State:     StateReview,
			Breakdown: pricing.Compute(nil, nil, s.rates.TaxRate()),
		}
	}
	return sess.Snapshot()
}

// AddItem looks the product up in the catalog and adds it to the cart.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "get product")
	}
	return s.active(userID).AddItem(*p, qty)
}

// SetQuantity changes the quantity of a cart item.
func (s *Service) SetQuantity(userID, productID string, qty int) error {
	return s.active(userID).SetQuantity(productID, qty)
}

// RemoveItem drops a cart item.
func (s *Service) RemoveItem(userID, productID string) error {
	return s.active(userID).RemoveItem(productID)
}

// ClearCart empties the cart and applied coupons.
func (s *Service) ClearCart(userID string) error {
	return s.active(userID).ClearCart()
}

// ApplyCoupon applies a coupon code to the user's session.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) error {
	return s.active(userID).ApplyCoupon(ctx, code)
}

// RemoveCoupon removes an applied coupon.
func (s *Service) RemoveCoupon(userID, code string) error {
	return s.active(userID).RemoveCoupon(code)
}

// ConfirmReview freezes the quote and moves the session to payment.
func (s *Service) ConfirmReview(ctx context.Context, userID string) (pricing.Breakdown, error) {
	q, err := s.active(userID).ConfirmReview(ctx)
	if err != nil {
		return q, err
	}
	zctx.From(ctx).Info("Checkout review confirmed",
		zap.String("user_id", userID),
		zap.String("total", q.TotalAmount.StringFixed(2)),
		zap.Strings("coupons", q.AppliedCoupons),
	)
	return q, nil
}

// Quote returns the frozen amount to pay.
func (s *Service) Quote(userID string) (pricing.Breakdown, error) {
	sess := s.lookup(userID)
	if sess == nil {
		return pricing.Breakdown{}, &StateError{Op: "quote", State: StateReview}
	}
	return sess.Quote()
}

// AcknowledgePaymentProof records the uploaded slip reference.
func (s *Service) AcknowledgePaymentProof(userID, slipRef string) error {
	sess := s.lookup(userID)
	if sess == nil {
		return &StateError{Op: "acknowledge payment proof", State: StateReview}
	}
	return sess.AcknowledgePaymentProof(slipRef)
}

type startedKey struct{}

// ConfirmPayment starts payment confirmation for the user's session. The
// returned Confirmation outlives ctx cancellation only if ctx is detached by
// the caller; see Session.ConfirmPayment.
func (s *Service) ConfirmPayment(ctx context.Context, userID string) (*Confirmation, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.ConfirmPayment",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	ctx = context.WithValue(ctx, startedKey{}, time.Now())

	var (
		c   *Confirmation
		err error
	)
	if sess := s.lookup(userID); sess != nil {
		c, err = sess.ConfirmPayment(ctx)
	} else {
		err = &StateError{Op: "confirm payment", State: StateReview}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm payment rejected")
		span.End()
		return nil, err
	}
	zctx.From(ctx).Info("Payment confirmation started", zap.String("user_id", userID))
	return c, nil
}

// Abandon cancels any in-flight confirmation and drops the user's session.
func (s *Service) Abandon(ctx context.Context, userID string) {
	s.mu.Lock()
	t, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if ok && t.sess.Abandon() {
		zctx.From(ctx).Info("Payment confirmation abandoned", zap.String("user_id", userID))
	}
}

// EvictIdle drops idle sessions every interval until ctx is done. Sessions
// in payment state or with a confirmation in flight are kept.
func (s *Service) EvictIdle(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.evict(); n > 0 {
				zctx.From(ctx).Debug("Evicted idle checkout sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *Service) evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	var n int
	for userID, t := range s.sessions {
		if !t.seen.Before(cutoff) || !t.sess.evictable() {
			continue
		}
		delete(s.sessions, userID)
		n++
	}
	return n
}

// lookup returns the user's session or nil, without creating one.
func (s *Service) lookup(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	t.seen = s.now()
	return t.sess
}

// active returns the user's session for a mutation, replacing a missing or
// confirmed session with a fresh one.
func (s *Service) active(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.sessions[userID]
	if !ok || t.sess.State() == StateConfirmed {
		t = &tracked{sess: s.newSession(userID)}
		s.sessions[userID] = t
	}
	t.seen = s.now()
	return t.sess
}

func (s *Service) newSession(userID string) *Session {
	return NewSession(userID, Config{
		Coupons:     s.coupons,
		Orders:      s.orders,
		Rates:       s.rates,
		VerifyDelay: s.delay,
		OnSettled:   s.settled,
	})
}

func (s *Service) settled(ctx context.Context, o *order.Order, err error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()
	lg := zctx.From(ctx)

	outcome := "placed"
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("order.id", o.ID))
		lg.Info("Order placed",
			zap.String("order_id", o.ID),
			zap.String("user_id", o.UserID),
			zap.String("total", o.TotalAmount.StringFixed(2)),
		)
		if err := s.events.Publish(context.WithoutCancel(ctx), order.Event{Type: order.EventPlaced, Order: *o}); err != nil {
			lg.Warn("Publish order event failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	case errors.Is(err, ErrConfirmationCancelled):
		outcome = "cancelled"
		lg.Info("Payment confirmation cancelled")
	default:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order")
		lg.Error("Payment confirmation failed", zap.Error(err))
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	s.outcomes.Add(ctx, 1, attrs)
	if started, ok := ctx.Value(startedKey{}).(time.Time); ok {
		s.duration.Record(ctx, time.Since(started).Seconds(), attrs)
	}
}
