// Package analytics aggregates order history into back-office revenue reports.
package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

var hundred = decimal.NewFromInt(100)

// CategoryRevenue is revenue attributed to one product category.
type CategoryRevenue struct {
	Category string
	Revenue  decimal.Decimal
}

// YearRevenue is revenue booked in one calendar year.
type YearRevenue struct {
	Year    int
	Revenue decimal.Decimal
}

// Report is a revenue summary. Pending orders are never counted.
type Report struct {
	Year int
	// Orders is the number of counted orders across all years.
	Orders int
	// Revenue is the sum of counted order totals across all years.
	Revenue decimal.Decimal
	// ByCategory sums post-discount line totals, sorted by category.
	ByCategory []CategoryRevenue
	// Monthly and Quarterly sum order totals placed in Year.
	Monthly   [12]decimal.Decimal
	Quarterly [4]decimal.Decimal
	// Yearly sums order totals per year, ascending.
	Yearly []YearRevenue
}

// Counted reports whether an order contributes to revenue.
func Counted(o order.Order) bool {
	return o.Status != order.StatusPending
}

// Summarize builds a report for year. Timestamps are bucketed in loc.
func Summarize(orders []order.Order, year int, loc *time.Location) Report {
	if loc == nil {
		loc = time.UTC
	}
	r := Report{Year: year, Revenue: decimal.Zero}
	for i := range r.Monthly {
		r.Monthly[i] = decimal.Zero
	}
	for i := range r.Quarterly {
		r.Quarterly[i] = decimal.Zero
	}

	categories := make(map[string]decimal.Decimal)
	years := make(map[int]decimal.Decimal)
	for _, o := range orders {
		if !Counted(o) {
			continue
		}
		r.Orders++
		r.Revenue = r.Revenue.Add(o.TotalAmount)

		for _, it := range o.Items {
			net := it.Price.Mul(hundred.Sub(it.DiscountPercent)).Div(hundred)
			line := net.Mul(decimal.NewFromInt(int64(it.Quantity)))
			categories[it.Category] = categories[it.Category].Add(line)
		}

		placed := o.CreatedAt.In(loc)
		years[placed.Year()] = years[placed.Year()].Add(o.TotalAmount)
		if placed.Year() == year {
			m := int(placed.Month()) - 1
			r.Monthly[m] = r.Monthly[m].Add(o.TotalAmount)
			r.Quarterly[m/3] = r.Quarterly[m/3].Add(o.TotalAmount)
		}
	}

	for c, v := range categories {
		r.ByCategory = append(r.ByCategory, CategoryRevenue{Category: c, Revenue: v})
	}
	slices.SortFunc(r.ByCategory, func(a, b CategoryRevenue) int {
		return cmp.Compare(a.Category, b.Category)
	})

	for y, v := range years {
		r.Yearly = append(r.Yearly, YearRevenue{Year: y, Revenue: v})
	}
	slices.SortFunc(r.Yearly, func(a, b YearRevenue) int {
		return cmp.Compare(a.Year, b.Year)
	})
	return r
}

// CategoryStock is the total units on hand in one category.
type CategoryStock struct {
	Category string
	Stock    int
}

// StockByCategory sums current inventory per category, sorted by category.
func StockByCategory(products []product.Product) []CategoryStock {
	stock := make(map[string]int)
	for _, p := range products {
		stock[p.Category] += p.Stock
	}
	out := make([]CategoryStock, 0, len(stock))
	for c, n := range stock {
		out = append(out, CategoryStock{Category: c, Stock: n})
	}
	slices.SortFunc(out, func(a, b CategoryStock) int {
		return cmp.Compare(a.Category, b.Category)
	})
	return out
}
