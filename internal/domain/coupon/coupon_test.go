package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "WELCOME100", NormalizeCode(" welcome100\t"))
	assert.Equal(t, "SALE5", NormalizeCode("Sale5"))
	assert.Equal(t, "", NormalizeCode("  "))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		coupon    Coupon
		wantCode  string
		wantValue decimal.Decimal
		wantErr   bool
	}{
		{
			name:      "fixed amount",
			coupon:    Coupon{Code: "welcome100", Type: TypeFixed, Value: d("100")},
			wantCode:  "WELCOME100",
			wantValue: d("100"),
		},
		{
			name:      "percent at upper bound",
			coupon:    Coupon{Code: "ALLFREE", Type: TypePercent, Value: d("100")},
			wantCode:  "ALLFREE",
			wantValue: d("100"),
		},
		{
			name:      "free shipping value is zeroed",
			coupon:    Coupon{Code: "freeship", Type: TypeFreeShipping, Value: d("42")},
			wantCode:  "FREESHIP",
			wantValue: decimal.Zero,
		},
		{
			name:    "percent above 100",
			coupon:  Coupon{Code: "TOOMUCH", Type: TypePercent, Value: d("100.01")},
			wantErr: true,
		},
		{
			name:    "zero percent",
			coupon:  Coupon{Code: "NOTHING", Type: TypePercent, Value: decimal.Zero},
			wantErr: true,
		},
		{
			name:    "negative fixed",
			coupon:  Coupon{Code: "NEG", Type: TypeFixed, Value: d("-5")},
			wantErr: true,
		},
		{
			name:    "unknown type",
			coupon:  Coupon{Code: "BOGO", Type: Type("free_lowest"), Value: d("1")},
			wantErr: true,
		},
		{
			name:    "empty code",
			coupon:  Coupon{Code: " ", Type: TypeFixed, Value: d("1")},
			wantErr: true,
		},
		{
			name:    "illegal characters",
			coupon:  Coupon{Code: "SAVE 10", Type: TypeFixed, Value: d("1")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.coupon
			err := c.Validate()
			if tt.wantErr {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, c.Code)
			assert.True(t, tt.wantValue.Equal(c.Value), "value %s", c.Value)
		})
	}
}

func TestCodes(t *testing.T) {
	got := Codes([]Coupon{{Code: "B"}, {Code: "A"}, {Code: "C"}})
	assert.Equal(t, []string{"B", "A", "C"}, got)
}
