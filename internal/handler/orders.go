package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

// listOrders returns the caller's orders. Admins see every order and may
// narrow the list with ?userId=.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	f := order.Filter{UserID: id.UserID}
	if id.IsAdmin() {
		f.UserID = r.URL.Query().Get("userId")
	}
	orders, err := h.Orders.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, o := range orders {
			encodeOrder(e, o)
		}
		e.ArrEnd()
	})
}

func (h *Handler) verifyOrder(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	o, err := h.Orders.Verify(r.Context(), r.PathValue("id"))
	writeOrder(w, r, o, err)
}

func (h *Handler) reportIssue(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	var note string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "note" {
			return d.Skip()
		}
		var err error
		note, err = d.Str()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.Orders.ReportIssue(r.Context(), r.PathValue("id"), note)
	writeOrder(w, r, o, err)
}

func writeOrder(w http.ResponseWriter, r *http.Request, o *order.Order, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, *o)
	})
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("category")
		e.Str(it.Category)
		money(e, "price", it.Price)
		percent(e, "discountPercent", it.DiscountPercent)
		money(e, "shippingCost", it.ShippingCost)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	money(e, "subtotal", o.Subtotal)
	money(e, "shippingTotal", o.ShippingTotal)
	money(e, "taxAmount", o.TaxAmount)
	money(e, "discountTotal", o.DiscountTotal)
	money(e, "totalAmount", o.TotalAmount)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("slipImage")
	e.Str(o.SlipImage)
	if o.AdminNote != "" {
		e.FieldStart("adminNote")
		e.Str(o.AdminNote)
	}
	strs(e, "appliedCoupons", o.AppliedCoupons)
	timestamp(e, "createdAt", o.CreatedAt)
	e.ObjEnd()
}
