package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byID      map[string]*Order
	updateErr error
	updates   []Status
}

func newOrderRepo(orders ...Order) *mockOrderRepo {
	m := &mockOrderRepo{byID: make(map[string]*Order)}
	for i := range orders {
		m.byID[orders[i].ID] = &orders[i]
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, d Draft) (*Order, error) {
	return nil, errors.New("not implemented")
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, f Filter) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		if f.UserID == "" || o.UserID == f.UserID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from, to Status, note string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	o := m.byID[id]
	if o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	if note != "" {
		o.AdminNote = note
	}
	m.updates = append(m.updates, to)
	return nil
}

type mockPublisher struct {
	events []Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e Event) error {
	m.events = append(m.events, e)
	return m.err
}

func newTestOrder(id string, status Status) Order {
	return Order{
		ID:            id,
		UserID:        "u1",
		Subtotal:      decimal.NewFromInt(2000),
		ShippingTotal: decimal.NewFromInt(100),
		TaxAmount:     decimal.NewFromInt(140),
		DiscountTotal: decimal.Zero,
		TotalAmount:   decimal.NewFromInt(2240),
		Status:        status,
		PaymentMethod: PaymentPromptPay,
	}
}

// --- Tests ---

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusVerified, StatusShipped, true},
		{StatusPaid, StatusShipped, false},
		{StatusShipped, StatusShipped, false},
		{StatusPending, StatusIssueReported, true},
		{StatusPaid, StatusIssueReported, true},
		{StatusVerified, StatusIssueReported, true},
		{StatusShipped, StatusIssueReported, true},
		{StatusIssueReported, StatusIssueReported, false},
		{StatusIssueReported, StatusShipped, false},
		{StatusVerified, StatusPaid, false},
		{Status("bogus"), StatusIssueReported, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestVerify(t *testing.T) {
	repo := newOrderRepo(newTestOrder("o1", StatusVerified))
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	got, err := svc.Verify(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	assert.Equal(t, StatusShipped, repo.byID["o1"].Status)
	assert.True(t, decimal.NewFromInt(2240).Equal(repo.byID["o1"].TotalAmount), "financials untouched")

	require.Len(t, pub.events, 1)
	assert.Equal(t, EventStatusChanged, pub.events[0].Type)
	assert.Equal(t, StatusShipped, pub.events[0].Order.Status)
}

func TestVerify_WrongStatus(t *testing.T) {
	repo := newOrderRepo(newTestOrder("o1", StatusIssueReported))
	svc := NewService(repo, nil)

	_, err := svc.Verify(context.Background(), "o1")

	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusIssueReported, tErr.From)
	assert.Equal(t, StatusShipped, tErr.To)
	assert.Empty(t, repo.updates)
}

func TestVerify_NotFound(t *testing.T) {
	svc := NewService(newOrderRepo(), nil)

	_, err := svc.Verify(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReportIssue(t *testing.T) {
	repo := newOrderRepo(newTestOrder("o1", StatusShipped))
	svc := NewService(repo, nil)

	got, err := svc.ReportIssue(context.Background(), "o1", "  Damaged box upon arrival. ")
	require.NoError(t, err)
	assert.Equal(t, StatusIssueReported, got.Status)
	assert.Equal(t, "Damaged box upon arrival.", got.AdminNote)
	assert.Equal(t, "Damaged box upon arrival.", repo.byID["o1"].AdminNote)
}

func TestReportIssue_NoteRequired(t *testing.T) {
	repo := newOrderRepo(newTestOrder("o1", StatusVerified))
	svc := NewService(repo, nil)

	_, err := svc.ReportIssue(context.Background(), "o1", "   ")
	require.ErrorIs(t, err, ErrNoteRequired)
	assert.Equal(t, StatusVerified, repo.byID["o1"].Status)
}

func TestReportIssue_AlreadyReported(t *testing.T) {
	repo := newOrderRepo(newTestOrder("o1", StatusIssueReported))
	svc := NewService(repo, nil)

	_, err := svc.ReportIssue(context.Background(), "o1", "again")

	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
}

func TestTransition_UpdateError(t *testing.T) {
	repo := newOrderRepo(newTestOrder("o1", StatusVerified))
	repo.updateErr = ErrStatusConflict
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	_, err := svc.Verify(context.Background(), "o1")
	require.ErrorIs(t, err, ErrStatusConflict)
	assert.Contains(t, err.Error(), "update order status")
	assert.Empty(t, pub.events)
}

func TestTransition_PublishErrorIsNotFatal(t *testing.T) {
	repo := newOrderRepo(newTestOrder("o1", StatusVerified))
	svc := NewService(repo, &mockPublisher{err: errors.New("broker down")})

	got, err := svc.Verify(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
}

func TestList(t *testing.T) {
	a := newTestOrder("o1", StatusVerified)
	b := newTestOrder("o2", StatusShipped)
	b.UserID = "u2"
	svc := NewService(newOrderRepo(a, b), nil)

	all, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := svc.List(context.Background(), Filter{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "o2", own[0].ID)
}
