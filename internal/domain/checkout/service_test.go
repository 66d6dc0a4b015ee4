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
	"github.com/xenking/storefront/internal/domain/product"
)

type mockProducts struct {
	products map[string]product.Product
	err      error
}

func (m *mockProducts) List(context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProducts) GetByIDs(context.Context, []string) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProducts) Upsert(context.Context, *product.Product) error { return nil }

func (m *mockProducts) Delete(context.Context, string) error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []order.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e order.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) published() []order.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]order.Event(nil), p.events...)
}

func newTestService(t *testing.T, delay time.Duration) (*Service, *mockOrders, *recordingPublisher) {
	t.Helper()
	products := &mockProducts{products: map[string]product.Product{
		"p1": testProduct("p1", "1000"),
		"p2": testProduct("p2", "250"),
	}}
	registry := newRegistry(
		coupon.Coupon{Code: "TEN", Type: coupon.TypePercent, Value: decimal.NewFromInt(10), Active: true},
	)
	orders := &mockOrders{}
	events := &recordingPublisher{}

	svc, err := NewService(products, registry, orders, &staticRate{rate: decimal.NewFromInt(7)}, Options{
		VerifyDelay: delay,
		Events:      events,
	})
	require.NoError(t, err)
	return svc, orders, events
}

func TestService_AddItem(t *testing.T) {
	svc, _, _ := newTestService(t, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, svc.AddItem(ctx, "u1", "p2", 1))
	require.ErrorIs(t, svc.AddItem(ctx, "u1", "missing", 1), product.ErrNotFound)
	require.ErrorIs(t, svc.AddItem(ctx, "u1", "p1", 0), ErrInvalidQuantity)

	snap := svc.Snapshot("u1")
	require.Len(t, snap.Items, 2)
	requireAmount(t, "2250", snap.Breakdown.Subtotal)

	assert.Empty(t, svc.Snapshot("u2").Items, "sessions are per user")
}

func TestService_AddItemCatalogFailure(t *testing.T) {
	products := &mockProducts{err: errors.New("timeout")}
	svc, err := NewService(products, newRegistry(), &mockOrders{}, &staticRate{}, Options{})
	require.NoError(t, err)

	err = svc.AddItem(context.Background(), "u1", "p1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get product")
	assert.False(t, IsRejection(err))
}

func TestService_FullCheckout(t *testing.T) {
	svc, orders, events := newTestService(t, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, svc.ApplyCoupon(ctx, "u1", "ten"))
	q, err := svc.ConfirmReview(ctx, "u1")
	require.NoError(t, err)
	requireAmount(t, "2026", q.TotalAmount)

	quote, err := svc.Quote("u1")
	require.NoError(t, err)
	assert.True(t, q.TotalAmount.Equal(quote.TotalAmount))

	_, err = svc.ConfirmPayment(ctx, "u1")
	require.ErrorIs(t, err, ErrPaymentProofMissing)

	require.NoError(t, svc.AcknowledgePaymentProof("u1", "slip-1"))
	c, err := svc.ConfirmPayment(ctx, "u1")
	require.NoError(t, err)

	o, err := waitDone(t, c)
	require.NoError(t, err)
	requireAmount(t, "2026", o.TotalAmount)
	assert.Len(t, orders.created(), 1)

	published := events.published()
	require.Len(t, published, 1)
	assert.Equal(t, order.EventPlaced, published[0].Type)
	assert.Equal(t, o.ID, published[0].Order.ID)

	snap := svc.Snapshot("u1")
	assert.Equal(t, StateConfirmed, snap.State)
	require.NotNil(t, snap.Placed)
	assert.Equal(t, o.ID, snap.Placed.ID)
}

func TestService_ConfirmedSessionReplacedOnMutation(t *testing.T) {
	svc, _, _ := newTestService(t, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	_, err := svc.ConfirmReview(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, svc.AcknowledgePaymentProof("u1", "slip"))
	c, err := svc.ConfirmPayment(ctx, "u1")
	require.NoError(t, err)
	_, err = waitDone(t, c)
	require.NoError(t, err)

	require.NoError(t, svc.AddItem(ctx, "u1", "p2", 1))

	snap := svc.Snapshot("u1")
	assert.Equal(t, StateReview, snap.State)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "p2", snap.Items[0].ProductID)
	assert.Nil(t, snap.Placed)
}

func TestService_PublishFailureDoesNotFailCheckout(t *testing.T) {
	svc, orders, events := newTestService(t, time.Millisecond)
	events.err = errors.New("broker down")
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	_, err := svc.ConfirmReview(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, svc.AcknowledgePaymentProof("u1", "slip"))
	c, err := svc.ConfirmPayment(ctx, "u1")
	require.NoError(t, err)

	_, err = waitDone(t, c)
	require.NoError(t, err)
	assert.Len(t, orders.created(), 1)
	assert.Equal(t, StateConfirmed, svc.Snapshot("u1").State)
}

func TestService_Abandon(t *testing.T) {
	svc, orders, events := newTestService(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	_, err := svc.ConfirmReview(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, svc.AcknowledgePaymentProof("u1", "slip"))
	c, err := svc.ConfirmPayment(ctx, "u1")
	require.NoError(t, err)

	svc.Abandon(ctx, "u1")

	_, err = waitDone(t, c)
	require.ErrorIs(t, err, ErrConfirmationCancelled)
	assert.Empty(t, orders.created())
	assert.Empty(t, events.published())

	snap := svc.Snapshot("u1")
	assert.Equal(t, StateReview, snap.State)
	assert.Empty(t, snap.Items)
}

func TestService_DefaultDelay(t *testing.T) {
	svc, err := NewService(&mockProducts{}, newRegistry(), &mockOrders{}, &staticRate{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultVerifyDelay, svc.delay)
}

func TestService_ReadsDoNotCreateSessions(t *testing.T) {
	svc, _, _ := newTestService(t, time.Millisecond)
	ctx := context.Background()

	for i := range 100 {
		userID := fmt.Sprintf("reader-%d", i)
		snap := svc.Snapshot(userID)
		assert.Equal(t, StateReview, snap.State)
		assert.Empty(t, snap.Items)
		requireAmount(t, "0", snap.Breakdown.TotalAmount)

		_, err := svc.Quote(userID)
		var stateErr *StateError
		require.ErrorAs(t, err, &stateErr)
		require.ErrorAs(t, svc.AcknowledgePaymentProof(userID, "slip"), &stateErr)
		_, err = svc.ConfirmPayment(ctx, userID)
		require.ErrorAs(t, err, &stateErr)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Empty(t, svc.sessions)
}

func TestService_EvictsIdleSessions(t *testing.T) {
	svc, _, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.AddItem(ctx, "idle", "p1", 1))

	require.NoError(t, svc.AddItem(ctx, "paying", "p1", 1))
	_, err := svc.ConfirmReview(ctx, "paying")
	require.NoError(t, err)

	require.NoError(t, svc.AddItem(ctx, "pending", "p1", 1))
	_, err = svc.ConfirmReview(ctx, "pending")
	require.NoError(t, err)
	require.NoError(t, svc.AcknowledgePaymentProof("pending", "slip"))
	c, err := svc.ConfirmPayment(ctx, "pending")
	require.NoError(t, err)
	defer c.Cancel()

	now = now.Add(DefaultSessionTTL / 2)
	require.NoError(t, svc.AddItem(ctx, "active", "p2", 1))
	assert.Zero(t, svc.evict(), "nothing is idle yet")

	now = now.Add(DefaultSessionTTL/2 + time.Minute)
	assert.Equal(t, 1, svc.evict())

	assert.Empty(t, svc.Snapshot("idle").Items, "idle review session was dropped")
	assert.Len(t, svc.Snapshot("active").Items, 1)
	assert.Equal(t, StatePayment, svc.Snapshot("paying").State)
	assert.True(t, svc.Snapshot("pending").Pending)
}

func TestService_EvictIdleLoop(t *testing.T) {
	svc, err := NewService(&mockProducts{products: map[string]product.Product{
		"p1": testProduct("p1", "1000"),
	}}, newRegistry(), &mockOrders{}, &staticRate{}, Options{SessionTTL: time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.EvictIdle(ctx, 5*time.Millisecond)
	}()

	assert.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.sessions) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
