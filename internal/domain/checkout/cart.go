package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// MaxQuantity caps the quantity of a single cart line.
const MaxQuantity = 10_000

// Item is a product snapshot taken when it was added to the cart plus the
// requested quantity. Later catalog edits do not reach it.
type Item struct {
	ProductID       string
	Name            string
	Category        string
	Image           string
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	ShippingCost    decimal.Decimal
	Quantity        int
}

// Line converts the item into its pricing representation.
func (i Item) Line() pricing.Line {
	return pricing.Line{
		ProductID:       i.ProductID,
		Price:           i.Price,
		DiscountPercent: i.DiscountPercent,
		ShippingCost:    i.ShippingCost,
		Quantity:        i.Quantity,
	}
}

// Cart is an ordered list of items, unique by product ID.
// The zero value is an empty cart. Cart is not safe for concurrent use.
type Cart struct {
	items []Item
}

// Add snapshots p into the cart. Adding a product that is already present
// only increases its quantity; the original snapshot is kept.
func (c *Cart) Add(p product.Product, qty int) error {
	if !validQuantity(qty) {
		return ErrInvalidQuantity
	}
	if i := c.index(p.ID); i >= 0 {
		sum := c.items[i].Quantity + qty
		if !validQuantity(sum) {
			return ErrInvalidQuantity
		}
		c.items[i].Quantity = sum
		return nil
	}
	c.items = append(c.items, Item{
		ProductID:       p.ID,
		Name:            p.Name,
		Category:        p.Category,
		Image:           p.Image,
		Price:           p.Price,
		DiscountPercent: p.DiscountPercent,
		ShippingCost:    p.ShippingCost,
		Quantity:        qty,
	})
	return nil
}

// SetQuantity replaces the quantity of an item already in the cart.
func (c *Cart) SetQuantity(productID string, qty int) error {
	if !validQuantity(qty) {
		return ErrInvalidQuantity
	}
	i := c.index(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.items[i].Quantity = qty
	return nil
}

// Remove drops an item from the cart.
func (c *Cart) Remove(productID string) error {
	i := c.index(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = nil
}

// Len returns the number of distinct products in the cart.
func (c *Cart) Len() int {
	return len(c.items)
}

// Items returns a copy of the cart contents in insertion order.
func (c *Cart) Items() []Item {
	if len(c.items) == 0 {
		return nil
	}
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Lines returns the cart as pricing lines.
func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(c.items))
	for i, it := range c.items {
		lines[i] = it.Line()
	}
	return lines
}

// OrderItems freezes the cart into order items.
func (c *Cart) OrderItems() []order.Item {
	items := make([]order.Item, len(c.items))
	for i, it := range c.items {
		items[i] = order.Item{
			ProductID:       it.ProductID,
			Name:            it.Name,
			Category:        it.Category,
			Price:           it.Price,
			DiscountPercent: it.DiscountPercent,
			ShippingCost:    it.ShippingCost,
			Quantity:        it.Quantity,
		}
	}
	return items
}

func validQuantity(qty int) bool {
	return qty >= 1 && qty <= MaxQuantity
}

func (c *Cart) index(productID string) int {
	for i := range c.items {
		if c.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}
