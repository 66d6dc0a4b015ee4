package checkout

import (
	"context"
	"sync"

	"github.com/xenking/storefront/internal/domain/order"
)

// Confirmation tracks an asynchronous payment confirmation.
//
// It can be cancelled until the order is handed to the store; after that
// Cancel has no effect and the outcome is whatever the store returns.
type Confirmation struct {
	done      chan struct{}
	cancelled chan struct{}

	mu         sync.Mutex
	persisting bool
	aborted    bool
	order      *order.Order
	err        error
}

func newConfirmation() *Confirmation {
	return &Confirmation{
		done:      make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

// Done is closed once the confirmation has an outcome.
func (c *Confirmation) Done() <-chan struct{} {
	return c.done
}

// Cancel aborts the confirmation if the order has not been submitted yet.
// It reports whether the cancellation took effect.
func (c *Confirmation) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.persisting || c.aborted {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	c.aborted = true
	close(c.cancelled)
	return true
}

// Wait blocks until the confirmation completes or ctx is done. Giving up on
// the wait does not cancel the confirmation.
func (c *Confirmation) Wait(ctx context.Context) (*order.Order, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome, or ErrConfirmationPending while still running.
func (c *Confirmation) Result() (*order.Order, error) {
	select {
	case <-c.done:
	default:
		return nil, ErrConfirmationPending
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order, c.err
}

// begin marks the point of no return. It fails if Cancel won the race.
func (c *Confirmation) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aborted {
		return false
	}
	c.persisting = true
	return true
}

func (c *Confirmation) resolve(o *order.Order, err error) {
	c.mu.Lock()
	c.order = o
	c.err = err
	c.mu.Unlock()
	close(c.done)
}
