// Package pricing turns cart lines, applied coupons and a tax rate into a
// financial breakdown.
//
// Computation is exact decimal arithmetic with no intermediate rounding and
// no state, so Compute may be called concurrently and repeatedly.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

var hundred = decimal.NewFromInt(100)

// Line is a single cart entry as seen by the pricing engine.
type Line struct {
	ProductID       string
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	ShippingCost    decimal.Decimal
	Quantity        int
}

// NetPrice is the unit price after the product's own discount.
func (l Line) NetPrice() decimal.Decimal {
	return l.Price.Mul(hundred.Sub(l.DiscountPercent)).Div(hundred)
}

// Total is the line total: net price times quantity.
func (l Line) Total() decimal.Decimal {
	return l.NetPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Breakdown is the derived financial summary of a cart.
type Breakdown struct {
	// Subtotal is the sum of line totals, already net of product discounts.
	Subtotal decimal.Decimal
	// DiscountTotal is the sum of fixed and percent coupon discounts. It may
	// exceed Subtotal; the tax base is floored at zero instead.
	DiscountTotal decimal.Decimal
	ShippingTotal decimal.Decimal
	TaxAmount     decimal.Decimal
	TotalAmount   decimal.Decimal
	// AppliedCoupons lists coupon codes in application order.
	AppliedCoupons []string
	// FreeShipping is set when any applied coupon waived shipping.
	FreeShipping bool
}

// TaxableAmount returns max(0, Subtotal - DiscountTotal).
func (b Breakdown) TaxableAmount() decimal.Decimal {
	return floorAtZero(b.Subtotal.Sub(b.DiscountTotal))
}

// Compute derives the breakdown for the given lines and coupons.
//
// Coupons stack without limit in application order. Every percent coupon is
// taken from the original subtotal, so two 10% coupons give 20% off, not 19%.
// Any number of free shipping coupons zero the shipping total and add nothing
// to the discount.
func Compute(lines []Line, coupons []coupon.Coupon, taxRatePercent decimal.Decimal) Breakdown {
	subtotal := decimal.Zero
	shipping := decimal.Zero
	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		subtotal = subtotal.Add(l.NetPrice().Mul(qty))
		shipping = shipping.Add(l.ShippingCost.Mul(qty))
	}

	discount := decimal.Zero
	freeShipping := false
	for _, c := range coupons {
		switch c.Type {
		case coupon.TypeFixed:
			discount = discount.Add(c.Value)
		case coupon.TypePercent:
			discount = discount.Add(subtotal.Mul(c.Value).Div(hundred))
		case coupon.TypeFreeShipping:
			freeShipping = true
		}
	}
	if freeShipping {
		shipping = decimal.Zero
	}

	taxable := floorAtZero(subtotal.Sub(discount))
	tax := taxable.Mul(taxRatePercent).Div(hundred)

	return Breakdown{
		Subtotal:       subtotal,
		DiscountTotal:  discount,
		ShippingTotal:  shipping,
		TaxAmount:      tax,
		TotalAmount:    taxable.Add(tax).Add(shipping),
		AppliedCoupons: coupon.Codes(coupons),
		FreeShipping:   freeShipping,
	}
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
