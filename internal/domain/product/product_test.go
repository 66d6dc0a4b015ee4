package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func validProduct() Product {
	return Product{
		ID:              "1",
		Name:            "Notebook",
		Price:           d("24990"),
		DiscountPercent: d("10"),
		Category:        "Notebook",
		Stock:           50,
		ShippingCost:    d("150"),
	}
}

func TestNetPrice(t *testing.T) {
	p := validProduct()
	assert.True(t, d("22491").Equal(p.NetPrice()), "got %s", p.NetPrice())

	p.DiscountPercent = decimal.Zero
	assert.True(t, d("24990").Equal(p.NetPrice()))

	p.Price = d("1390")
	p.DiscountPercent = d("15")
	assert.True(t, d("1181.5").Equal(p.NetPrice()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *Product)
		wantField string
	}{
		{name: "valid", mutate: func(*Product) {}},
		{name: "missing name", mutate: func(p *Product) { p.Name = "" }, wantField: "name"},
		{name: "missing category", mutate: func(p *Product) { p.Category = "" }, wantField: "category"},
		{name: "zero price", mutate: func(p *Product) { p.Price = decimal.Zero }, wantField: "price"},
		{name: "discount above 100", mutate: func(p *Product) { p.DiscountPercent = d("100.5") }, wantField: "discountPercent"},
		{name: "negative discount", mutate: func(p *Product) { p.DiscountPercent = d("-1") }, wantField: "discountPercent"},
		{name: "negative stock", mutate: func(p *Product) { p.Stock = -1 }, wantField: "stock"},
		{name: "negative shipping", mutate: func(p *Product) { p.ShippingCost = d("-0.01") }, wantField: "shippingCost"},
		{name: "full discount allowed", mutate: func(p *Product) { p.DiscountPercent = d("100") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}
