package coupon

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	// filterCapacity sizes the bloom filter for the expected number of codes.
	filterCapacity = 1_000_000
	filterFPR      = 0.001
)

var _ Registry = (*Catalog)(nil)

// Catalog implements Registry on top of a Repository. A bloom filter of every
// known code lets unknown codes be rejected without touching the database.
type Catalog struct {
	repo Repository

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCatalog creates a Catalog backed by the given Repository. Call Load
// before serving lookups; until then every code goes to the repository.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

// Load builds the code filter from the repository.
func (c *Catalog) Load(ctx context.Context) error {
	codes, err := c.repo.Codes(ctx)
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}

	filter := bloom.NewWithEstimates(filterCapacity, filterFPR)
	for _, code := range codes {
		filter.AddString(NormalizeCode(code))
	}

	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()
	return nil
}

// Refresh rebuilds the filter every interval until ctx is done, so codes
// written by other processes become visible. A failed reload keeps the
// previous filter.
func (c *Catalog) Refresh(ctx context.Context, interval time.Duration) {
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
			if err := c.Load(ctx); err != nil && ctx.Err() == nil {
				zctx.From(ctx).Warn("Reload coupon codes", zap.Error(err))
			}
		}
	}
}

// FindActive looks up an active coupon by code, case-insensitively.
// Unknown and inactive codes both yield ErrInvalidCoupon.
func (c *Catalog) FindActive(ctx context.Context, code string) (*Coupon, error) {
	code = NormalizeCode(code)
	if code == "" || !c.mayContain(code) {
		return nil, ErrInvalidCoupon
	}

	found, err := c.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !found.Active {
		return nil, ErrInvalidCoupon
	}
	return found, nil
}

// List returns every coupon for the back office.
func (c *Catalog) List(ctx context.Context) ([]Coupon, error) {
	return c.repo.List(ctx)
}

// Create validates and stores a new coupon, registering its code in the filter.
func (c *Catalog) Create(ctx context.Context, cp *Coupon) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	if err := c.repo.Create(ctx, cp); err != nil {
		return err
	}

	c.mu.Lock()
	if c.filter != nil {
		c.filter.AddString(cp.Code)
	}
	c.mu.Unlock()
	return nil
}

// SetActive toggles whether a coupon can be applied at checkout.
func (c *Catalog) SetActive(ctx context.Context, code string, active bool) error {
	return c.repo.SetActive(ctx, NormalizeCode(code), active)
}

func (c *Catalog) mayContain(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.filter == nil {
		return true
	}
	return c.filter.TestString(code)
}
