package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/analytics"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	coupons, err := h.Coupons.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range coupons {
			encodeCoupon(e, c)
		}
		e.ArrEnd()
	})
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	c := coupon.Coupon{Active: true}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "type":
			var t string
			t, err = d.Str()
			c.Type = coupon.Type(t)
		case "value":
			c.Value, err = decodeDecimal(d)
		case "active":
			c.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Coupons.Create(r.Context(), &c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeCoupon(e, c)
	})
}

func (h *Handler) setCouponActive(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	active, err := decodeFlag(w, r, "active")
	if err != nil {
		fail(w, r, err)
		return
	}
	code := coupon.NormalizeCode(r.PathValue("code"))
	if err := h.Coupons.SetActive(r.Context(), code, active); err != nil {
		if errors.Is(err, coupon.ErrInvalidCoupon) {
			writeError(w, http.StatusNotFound, "coupon not found")
			return
		}
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(code)
		e.FieldStart("active")
		e.Bool(active)
		e.ObjEnd()
	})
}

func (h *Handler) getTaxRate(w http.ResponseWriter, _ *http.Request, _ *auth.Identity) {
	writeTaxRate(w, h.Settings.TaxRate())
}

func (h *Handler) setTaxRate(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	var (
		rate decimal.Decimal
		seen bool
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "taxRate" {
			return d.Skip()
		}
		seen = true
		var err error
		rate, err = decodeDecimal(d)
		return err
	})
	if err == nil && !seen {
		err = invalid("taxRate is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Settings.SetTaxRate(r.Context(), rate); err != nil {
		fail(w, r, err)
		return
	}
	writeTaxRate(w, rate)
}

func writeTaxRate(w http.ResponseWriter, rate decimal.Decimal) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		percent(e, "taxRate", rate)
		e.ObjEnd()
	})
}

// revenue reports analytics for ?year= (default: the current year).
func (h *Handler) revenue(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	year := time.Now().In(h.cfg.Location).Year()
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1970 || y > 9999 {
			fail(w, r, invalid("year must be a four digit number"))
			return
		}
		year = y
	}

	orders, err := h.Orders.List(r.Context(), order.Filter{})
	if err != nil {
		fail(w, r, err)
		return
	}
	products, err := h.Products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}

	report := analytics.Summarize(orders, year, h.cfg.Location)
	stock := analytics.StockByCategory(products)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeReport(e, report, stock)
	})
}

func decodeFlag(w http.ResponseWriter, r *http.Request, name string) (bool, error) {
	var (
		v    bool
		seen bool
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != name {
			return d.Skip()
		}
		seen = true
		var err error
		v, err = d.Bool()
		return err
	})
	if err == nil && !seen {
		err = invalid(name + " is required")
	}
	return v, err
}

func encodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("type")
	e.Str(string(c.Type))
	e.FieldStart("value")
	e.Raw([]byte(c.Value.String()))
	e.FieldStart("active")
	e.Bool(c.Active)
	if !c.CreatedAt.IsZero() {
		timestamp(e, "createdAt", c.CreatedAt)
	}
	e.ObjEnd()
}

func encodeReport(e *jx.Encoder, rep analytics.Report, stock []analytics.CategoryStock) {
	e.ObjStart()
	e.FieldStart("year")
	e.Int(rep.Year)
	e.FieldStart("orders")
	e.Int(rep.Orders)
	money(e, "revenue", rep.Revenue)

	e.FieldStart("byCategory")
	e.ArrStart()
	for _, c := range rep.ByCategory {
		e.ObjStart()
		e.FieldStart("category")
		e.Str(c.Category)
		money(e, "revenue", c.Revenue)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("monthly")
	e.ArrStart()
	for _, m := range rep.Monthly {
		moneyValue(e, m)
	}
	e.ArrEnd()

	e.FieldStart("quarterly")
	e.ArrStart()
	for _, q := range rep.Quarterly {
		moneyValue(e, q)
	}
	e.ArrEnd()

	e.FieldStart("yearly")
	e.ArrStart()
	for _, y := range rep.Yearly {
		e.ObjStart()
		e.FieldStart("year")
		e.Int(y.Year)
		money(e, "revenue", y.Revenue)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("stockByCategory")
	e.ArrStart()
	for _, s := range stock {
		e.ObjStart()
		e.FieldStart("category")
		e.Str(s.Category)
		e.FieldStart("stock")
		e.Int(s.Stock)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
