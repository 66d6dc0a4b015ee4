package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

// --- Mock implementations ---

type mockRegistry struct {
	mu      sync.Mutex
	coupons map[string]coupon.Coupon
	err     error
}

func newRegistry(coupons ...coupon.Coupon) *mockRegistry {
	m := &mockRegistry{coupons: make(map[string]coupon.Coupon)}
	for _, c := range coupons {
		m.coupons[c.Code] = c
	}
	return m
}

func (m *mockRegistry) FindActive(_ context.Context, code string) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.coupons[coupon.NormalizeCode(code)]
	if !ok || !c.Active {
		return nil, coupon.ErrInvalidCoupon
	}
	return &c, nil
}

func (m *mockRegistry) setActive(code string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coupons[code]
	c.Active = active
	m.coupons[code] = c
}

// blockingRegistry holds every lookup until it receives from release or
// release is closed.
type blockingRegistry struct {
	*mockRegistry
	entered chan string
	release chan struct{}
}

func newBlockingRegistry(inner *mockRegistry) *blockingRegistry {
	return &blockingRegistry{
		mockRegistry: inner,
		entered:      make(chan string, 8),
		release:      make(chan struct{}),
	}
}

func (b *blockingRegistry) FindActive(ctx context.Context, code string) (*coupon.Coupon, error) {
	b.entered <- code
	<-b.release
	return b.mockRegistry.FindActive(ctx, code)
}

type staticRate struct {
	mu   sync.Mutex
	rate decimal.Decimal
}

func (r *staticRate) TaxRate() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

func (r *staticRate) set(v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = decimal.NewFromInt(v)
}

type mockOrders struct {
	mu      sync.Mutex
	drafts  []order.Draft
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (m *mockOrders) Create(_ context.Context, d order.Draft) (*order.Order, error) {
	if m.started != nil {
		close(m.started)
	}
	if m.gate != nil {
		<-m.gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	m.drafts = append(m.drafts, d)
	return &order.Order{
		ID:             fmt.Sprintf("order-%d", len(m.drafts)),
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
		AppliedCoupons: d.AppliedCoupons,
		CreatedAt:      time.Now(),
	}, nil
}

func (m *mockOrders) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockOrders) created() []order.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.Draft(nil), m.drafts...)
}

func (m *mockOrders) Get(context.Context, string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (m *mockOrders) List(context.Context, order.Filter) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrders) UpdateStatus(context.Context, string, order.Status, order.Status, string) error {
	return errors.New("not implemented")
}

// --- Helpers ---

type fixture struct {
	registry *mockRegistry
	orders   *mockOrders
	rate     *staticRate
	session  *Session
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		registry: newRegistry(
			coupon.Coupon{Code: "TEN", Type: coupon.TypePercent, Value: decimal.NewFromInt(10), Active: true},
			coupon.Coupon{Code: "WELCOME100", Type: coupon.TypeFixed, Value: decimal.NewFromInt(100), Active: true},
			coupon.Coupon{Code: "HUGE", Type: coupon.TypeFixed, Value: decimal.NewFromInt(3000), Active: true},
			coupon.Coupon{Code: "FREESHIP", Type: coupon.TypeFreeShipping, Active: true},
			coupon.Coupon{Code: "OLD", Type: coupon.TypeFixed, Value: decimal.NewFromInt(5), Active: false},
		),
		orders: &mockOrders{},
		rate:   &staticRate{rate: decimal.NewFromInt(7)},
	}
	f.session = NewSession("user-1", Config{
		Coupons:     f.registry,
		Orders:      f.orders,
		Rates:       f.rate,
		VerifyDelay: delay,
	})
	return f
}

// toPayment fills the standard cart (2 x 1000, shipping 50), applies the
// given coupons and confirms the review.
func (f *fixture) toPayment(t *testing.T, codes ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.session.AddItem(testProduct("p1", "1000"), 2))
	for _, code := range codes {
		require.NoError(t, f.session.ApplyCoupon(ctx, code))
	}
	_, err := f.session.ConfirmReview(ctx)
	require.NoError(t, err)
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func waitDone(t *testing.T, c *Confirmation) (*order.Order, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o, err := c.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "confirmation did not finish")
	return o, err
}

// --- Review state ---

func TestSession_BreakdownScenarios(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		total string
	}{
		{name: "no coupons", total: "2240"},
		{name: "percent", codes: []string{"TEN"}, total: "2026"},
		{name: "fixed exceeds subtotal", codes: []string{"HUGE"}, total: "100"},
		{name: "free shipping and fixed", codes: []string{"FREESHIP", "WELCOME100"}, total: "2033"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			require.NoError(t, f.session.AddItem(testProduct("p1", "1000"), 2))
			for _, code := range tt.codes {
				require.NoError(t, f.session.ApplyCoupon(context.Background(), code))
			}

			b := f.session.Breakdown()
			requireAmount(t, tt.total, b.TotalAmount)
			assert.Len(t, b.AppliedCoupons, len(tt.codes))
		})
	}
}

func TestSession_ApplyCouponCaseInsensitive(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.session.ApplyCoupon(context.Background(), "  ten "))

	assert.Equal(t, []string{"TEN"}, f.session.Snapshot().Coupons)
}

func TestSession_ApplyCouponTwiceRejected(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, f.session.AddItem(testProduct("p1", "1000"), 2))
	require.NoError(t, f.session.ApplyCoupon(ctx, "TEN"))
	before := f.session.Breakdown()

	err := f.session.ApplyCoupon(ctx, "ten")
	require.ErrorIs(t, err, ErrCouponAlreadyApplied)
	assert.True(t, IsRejection(err))

	after := f.session.Breakdown()
	assert.Equal(t, []string{"TEN"}, after.AppliedCoupons)
	assert.True(t, before.TotalAmount.Equal(after.TotalAmount))
}

func TestSession_ApplyCouponInvalid(t *testing.T) {
	for _, code := range []string{"NOPE", "OLD", "   "} {
		t.Run(code, func(t *testing.T) {
			f := newFixture(t, 0)

			err := f.session.ApplyCoupon(context.Background(), code)
			require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
			assert.True(t, IsRejection(err))
			assert.Empty(t, f.session.Snapshot().Coupons)
		})
	}
}

func TestSession_ApplyCouponRegistryFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.registry.err = errors.New("connection refused")

	err := f.session.ApplyCoupon(context.Background(), "TEN")
	require.Error(t, err)
	assert.False(t, IsRejection(err))
}

func TestSession_RemoveCouponRecomputes(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, f.session.AddItem(testProduct("p1", "1000"), 2))
	require.NoError(t, f.session.ApplyCoupon(ctx, "TEN"))
	requireAmount(t, "2026", f.session.Breakdown().TotalAmount)

	require.NoError(t, f.session.RemoveCoupon("ten"))
	requireAmount(t, "2240", f.session.Breakdown().TotalAmount)

	require.ErrorIs(t, f.session.RemoveCoupon("TEN"), ErrCouponNotApplied)

	require.NoError(t, f.session.ApplyCoupon(ctx, "TEN"))
	requireAmount(t, "2026", f.session.Breakdown().TotalAmount)
}

func TestSession_ClearCartClearsCoupons(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.session.AddItem(testProduct("p1", "1000"), 2))
	require.NoError(t, f.session.ApplyCoupon(context.Background(), "TEN"))

	require.NoError(t, f.session.ClearCart())

	snap := f.session.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.Coupons)
	assert.True(t, snap.Breakdown.TotalAmount.IsZero())
}

func TestSession_ReviewTracksTaxRate(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.session.AddItem(testProduct("p1", "1000"), 2))

	f.rate.set(10)

	requireAmount(t, "200", f.session.Breakdown().TaxAmount)
}

// --- Review to payment ---

func TestSession_ConfirmReviewEmptyCart(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.session.ConfirmReview(context.Background())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.True(t, IsRejection(err))
	assert.Equal(t, StateReview, f.session.State())
}

func TestSession_ConfirmReviewFreezesQuote(t *testing.T) {
	f := newFixture(t, 0)
	f.toPayment(t, "TEN")
	require.Equal(t, StatePayment, f.session.State())

	f.rate.set(20)
	f.registry.setActive("TEN", false)

	q, err := f.session.Quote()
	require.NoError(t, err)
	requireAmount(t, "2026", q.TotalAmount)
	requireAmount(t, "2026", f.session.Breakdown().TotalAmount)
	assert.Equal(t, []string{"TEN"}, q.AppliedCoupons)
}

func TestSession_PaymentRejectsMutations(t *testing.T) {
	f := newFixture(t, 0)
	f.toPayment(t)
	ctx := context.Background()

	var stateErr *StateError
	require.ErrorAs(t, f.session.AddItem(testProduct("p2", "5"), 1), &stateErr)
	assert.Equal(t, StatePayment, stateErr.State)
	require.ErrorAs(t, f.session.ApplyCoupon(ctx, "TEN"), &stateErr)
	require.ErrorAs(t, f.session.RemoveCoupon("TEN"), &stateErr)
	require.ErrorAs(t, f.session.SetQuantity("p1", 3), &stateErr)
	require.ErrorAs(t, f.session.ClearCart(), &stateErr)
	_, err := f.session.ConfirmReview(ctx)
	require.ErrorAs(t, err, &stateErr)
	assert.True(t, IsRejection(err))

	assert.Len(t, f.session.Snapshot().Items, 1)
}

func TestSession_ConfirmReviewRevalidatesCoupons(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, f.session.AddItem(testProduct("p1", "1000"), 2))
	require.NoError(t, f.session.ApplyCoupon(ctx, "TEN"))
	f.registry.setActive("TEN", false)

	_, err := f.session.ConfirmReview(ctx)
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Contains(t, err.Error(), "TEN")
	assert.Equal(t, StateReview, f.session.State())
	assert.Equal(t, []string{"TEN"}, f.session.Snapshot().Coupons)
}

func newBlockedSession(t *testing.T) (*Session, *blockingRegistry) {
	t.Helper()
	f := newFixture(t, 0)
	reg := newBlockingRegistry(f.registry)
	sess := NewSession("user-1", Config{
		Coupons: reg,
		Orders:  f.orders,
		Rates:   f.rate,
	})
	require.NoError(t, sess.AddItem(testProduct("p1", "1000"), 2))
	return sess, reg
}

func requireSnapshotResponsive(t *testing.T, sess *Session) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Snapshot()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked behind a coupon lookup")
	}
}

func TestSession_ApplyCouponLookupDoesNotBlockReads(t *testing.T) {
	sess, reg := newBlockedSession(t)
	ctx := context.Background()

	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- sess.ApplyCoupon(ctx, "TEN") }()
	}
	<-reg.entered
	<-reg.entered

	requireSnapshotResponsive(t, sess)
	close(reg.release)

	var applied, duplicate int
	for range 2 {
		switch err := <-errs; {
		case err == nil:
			applied++
		case errors.Is(err, ErrCouponAlreadyApplied):
			duplicate++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, duplicate)
	assert.Equal(t, []string{"TEN"}, sess.Snapshot().Coupons)
}

func TestSession_ConfirmReviewRechecksAfterLookup(t *testing.T) {
	sess, reg := newBlockedSession(t)
	ctx := context.Background()

	go func() { reg.release <- struct{}{} }()
	require.NoError(t, sess.ApplyCoupon(ctx, "TEN"))
	<-reg.entered

	errs := make(chan error, 1)
	go func() {
		_, err := sess.ConfirmReview(ctx)
		errs <- err
	}()
	<-reg.entered

	requireSnapshotResponsive(t, sess)
	require.NoError(t, sess.ClearCart())
	close(reg.release)

	require.ErrorIs(t, <-errs, ErrEmptyCart)
	assert.Equal(t, StateReview, sess.State())
}

func TestSession_QuoteOnlyInPayment(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.session.Quote()
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, StateReview, stateErr.State)
}

// --- Payment proof ---

func TestSession_AcknowledgePaymentProof(t *testing.T) {
	f := newFixture(t, 0)

	var stateErr *StateError
	require.ErrorAs(t, f.session.AcknowledgePaymentProof("slip.png"), &stateErr)

	f.toPayment(t)
	require.ErrorIs(t, f.session.AcknowledgePaymentProof("  "), ErrPaymentProofMissing)
	assert.False(t, f.session.Snapshot().SlipAcknowledged)

	require.NoError(t, f.session.AcknowledgePaymentProof("slip.png"))
	assert.True(t, f.session.Snapshot().SlipAcknowledged)
}

func TestSession_ConfirmPaymentWithoutProof(t *testing.T) {
	f := newFixture(t, 0)
	f.toPayment(t)

	c, err := f.session.ConfirmPayment(context.Background())
	require.ErrorIs(t, err, ErrPaymentProofMissing)
	assert.Nil(t, c)
	assert.True(t, IsRejection(err))
	assert.Equal(t, StatePayment, f.session.State())
	assert.Empty(t, f.orders.created())
}

func TestSession_ConfirmPaymentFromReview(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.session.ConfirmPayment(context.Background())
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "confirm payment", stateErr.Op)
}

// --- Confirmation ---

func TestSession_ConfirmPaymentSuccess(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	f.toPayment(t, "FREESHIP", "WELCOME100")
	quote, err := f.session.Quote()
	require.NoError(t, err)
	require.NoError(t, f.session.AcknowledgePaymentProof("slips/123.png"))

	c, err := f.session.ConfirmPayment(context.Background())
	require.NoError(t, err)
	assert.True(t, f.session.Snapshot().Pending)

	o, err := waitDone(t, c)
	require.NoError(t, err)
	require.NotNil(t, o)

	drafts := f.orders.created()
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, "user-1", d.UserID)
	assert.Equal(t, order.StatusVerified, d.Status)
	assert.Equal(t, order.PaymentPromptPay, d.PaymentMethod)
	assert.Equal(t, "slips/123.png", d.SlipImage)
	assert.Equal(t, []string{"FREESHIP", "WELCOME100"}, d.AppliedCoupons)
	require.Len(t, d.Items, 1)
	assert.Equal(t, 2, d.Items[0].Quantity)
	requireAmount(t, "2000", d.Subtotal)
	requireAmount(t, "100", d.DiscountTotal)
	requireAmount(t, "0", d.ShippingTotal)
	requireAmount(t, "133", d.TaxAmount)
	requireAmount(t, "2033", d.TotalAmount)
	assert.True(t, quote.TotalAmount.Equal(o.TotalAmount))

	snap := f.session.Snapshot()
	assert.Equal(t, StateConfirmed, snap.State)
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.Coupons)
	assert.False(t, snap.SlipAcknowledged)
	assert.False(t, snap.Pending)
	assert.Equal(t, o, snap.Placed)
	assert.True(t, snap.Breakdown.TotalAmount.IsZero())

	got, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, o, got)

	_, err = f.session.ConfirmPayment(context.Background())
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Len(t, f.orders.created(), 1)
}

func TestSession_ConfirmPaymentPending(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.toPayment(t)
	require.NoError(t, f.session.AcknowledgePaymentProof("slip"))

	c, err := f.session.ConfirmPayment(context.Background())
	require.NoError(t, err)

	_, err = f.session.ConfirmPayment(context.Background())
	require.ErrorIs(t, err, ErrConfirmationPending)
	require.ErrorIs(t, f.session.AcknowledgePaymentProof("other"), ErrConfirmationPending)

	_, err = c.Result()
	require.ErrorIs(t, err, ErrConfirmationPending)

	require.True(t, c.Cancel())
	_, err = waitDone(t, c)
	require.ErrorIs(t, err, ErrConfirmationCancelled)
}

func TestSession_ConcurrentConfirmCreatesOneOrder(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond)
	f.toPayment(t)
	require.NoError(t, f.session.AcknowledgePaymentProof("slip"))

	const attempts = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []*Confirmation
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := f.session.ConfirmPayment(context.Background())
			if err != nil {
				return
			}
			mu.Lock()
			accepted = append(accepted, c)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, accepted, 1)
	_, err := waitDone(t, accepted[0])
	require.NoError(t, err)
	assert.Len(t, f.orders.created(), 1)
}

func TestSession_ConfirmPaymentStoreFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.toPayment(t, "TEN")
	require.NoError(t, f.session.AcknowledgePaymentProof("slip"))
	storeErr := errors.New("database unavailable")
	f.orders.setErr(storeErr)

	c, err := f.session.ConfirmPayment(context.Background())
	require.NoError(t, err)

	_, err = waitDone(t, c)
	require.ErrorIs(t, err, storeErr)
	assert.False(t, IsRejection(err))

	snap := f.session.Snapshot()
	assert.Equal(t, StatePayment, snap.State)
	assert.Len(t, snap.Items, 1)
	assert.Equal(t, []string{"TEN"}, snap.Coupons)
	assert.True(t, snap.SlipAcknowledged)
	assert.False(t, snap.Pending)
	require.ErrorIs(t, snap.LastError, storeErr)
	requireAmount(t, "2026", snap.Breakdown.TotalAmount)

	// Retry succeeds once the store recovers.
	f.orders.setErr(nil)
	c, err = f.session.ConfirmPayment(context.Background())
	require.NoError(t, err)
	o, err := waitDone(t, c)
	require.NoError(t, err)
	requireAmount(t, "2026", o.TotalAmount)
	assert.Equal(t, StateConfirmed, f.session.State())
	assert.NoError(t, f.session.Snapshot().LastError)
}

func TestSession_CancelDuringDelay(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.toPayment(t, "TEN")
	require.NoError(t, f.session.AcknowledgePaymentProof("slip"))

	c, err := f.session.ConfirmPayment(context.Background())
	require.NoError(t, err)
	require.True(t, c.Cancel())
	assert.False(t, c.Cancel(), "second cancel is a no-op")

	_, err = waitDone(t, c)
	require.ErrorIs(t, err, ErrConfirmationCancelled)
	assert.Empty(t, f.orders.created())

	snap := f.session.Snapshot()
	assert.Equal(t, StatePayment, snap.State)
	assert.Equal(t, []string{"TEN"}, snap.Coupons)
	assert.True(t, snap.SlipAcknowledged)
	assert.False(t, snap.Pending)
	assert.NoError(t, snap.LastError)
}

func TestSession_ContextCancelDuringDelay(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.toPayment(t)
	require.NoError(t, f.session.AcknowledgePaymentProof("slip"))

	ctx, cancel := context.WithCancel(context.Background())
	c, err := f.session.ConfirmPayment(ctx)
	require.NoError(t, err)
	cancel()

	_, err = waitDone(t, c)
	require.ErrorIs(t, err, ErrConfirmationCancelled)
	assert.Empty(t, f.orders.created())
	assert.Equal(t, StatePayment, f.session.State())
}

func TestSession_CancelAfterPersistenceStarted(t *testing.T) {
	f := newFixture(t, 0)
	f.orders.started = make(chan struct{})
	f.orders.gate = make(chan struct{})
	f.toPayment(t)
	require.NoError(t, f.session.AcknowledgePaymentProof("slip"))

	c, err := f.session.ConfirmPayment(context.Background())
	require.NoError(t, err)

	<-f.orders.started
	assert.False(t, c.Cancel())
	assert.False(t, f.session.Abandon())
	close(f.orders.gate)

	o, err := waitDone(t, c)
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StateConfirmed, f.session.State())
}

func TestSession_Abandon(t *testing.T) {
	f := newFixture(t, time.Hour)
	assert.False(t, f.session.Abandon())

	f.toPayment(t)
	require.NoError(t, f.session.AcknowledgePaymentProof("slip"))
	c, err := f.session.ConfirmPayment(context.Background())
	require.NoError(t, err)

	assert.True(t, f.session.Abandon())
	_, err = waitDone(t, c)
	require.ErrorIs(t, err, ErrConfirmationCancelled)
	assert.Empty(t, f.orders.created())
}

func TestConfirmation_WaitHonoursContext(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.toPayment(t)
	require.NoError(t, f.session.AcknowledgePaymentProof("slip"))
	c, err := f.session.ConfirmPayment(context.Background())
	require.NoError(t, err)
	defer c.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-c.Done():
		t.Fatal("confirmation finished early")
	default:
	}
	assert.True(t, f.session.Snapshot().Pending)
}

func TestSession_OnSettled(t *testing.T) {
	var (
		mu       sync.Mutex
		outcomes []error
		placed   []*order.Order
	)
	orders := &mockOrders{}
	s := NewSession("user-2", Config{
		Coupons: newRegistry(),
		Orders:  orders,
		Rates:   &staticRate{rate: decimal.NewFromInt(7)},
		OnSettled: func(_ context.Context, o *order.Order, err error) {
			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, err)
			placed = append(placed, o)
		},
	})
	require.NoError(t, s.AddItem(testProduct("p1", "10"), 1))
	_, err := s.ConfirmReview(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.AcknowledgePaymentProof("slip"))

	c, err := s.ConfirmPayment(context.Background())
	require.NoError(t, err)
	_, err = waitDone(t, c)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0])
	require.NotNil(t, placed[0])
	assert.Equal(t, "user-2", placed[0].UserID)
}
