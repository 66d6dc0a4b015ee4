package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/payment"
)

func (h *Handler) getCheckout(w http.ResponseWriter, _ *http.Request, id *auth.Identity) {
	h.writeSnapshot(w, http.StatusOK, id.UserID)
}

func (h *Handler) abandonCheckout(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	h.Checkout.Abandon(r.Context(), id.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var (
		productID string
		qty       = 1
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = d.Str()
		case "quantity":
			qty, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && productID == "" {
		err = invalid("productId is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	h.mutate(w, r, id, h.Checkout.AddItem(r.Context(), id.UserID, productID, qty))
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	qty := -1
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		qty, err = d.Int()
		return err
	})
	if err == nil && qty < 0 {
		err = invalid("quantity is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	h.mutate(w, r, id, h.Checkout.SetQuantity(id.UserID, r.PathValue("productId"), qty))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	h.mutate(w, r, id, h.Checkout.RemoveItem(id.UserID, r.PathValue("productId")))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	h.mutate(w, r, id, h.Checkout.ClearCart(id.UserID))
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var code string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	})
	if err == nil && code == "" {
		err = invalid("code is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	h.mutate(w, r, id, h.Checkout.ApplyCoupon(r.Context(), id.UserID, code))
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	h.mutate(w, r, id, h.Checkout.RemoveCoupon(id.UserID, r.PathValue("code")))
}

func (h *Handler) confirmReview(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	_, err := h.Checkout.ConfirmReview(r.Context(), id.UserID)
	h.mutate(w, r, id, err)
}

func (h *Handler) acknowledgeSlip(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var ref string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "slipRef" {
			return d.Skip()
		}
		var err error
		ref, err = d.Str()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	h.mutate(w, r, id, h.Checkout.AcknowledgePaymentProof(id.UserID, ref))
}

// confirmPayment starts verification and answers 202 at once. The
// confirmation outlives the request; clients poll GET /api/checkout.
func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	if _, err := h.Checkout.ConfirmPayment(context.WithoutCancel(r.Context()), id.UserID); err != nil {
		fail(w, r, err)
		return
	}
	h.writeSnapshot(w, http.StatusAccepted, id.UserID)
}

func (h *Handler) paymentQR(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	quote, err := h.Checkout.Quote(id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	payload, err := payment.PromptPayPayload(h.cfg.PromptPayTarget, quote.TotalAmount)
	if err != nil {
		fail(w, r, err)
		return
	}
	png, err := payment.QRCode(payload, h.cfg.QRSize)
	if err != nil {
		fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-PromptPay-Amount", quote.TotalAmount.StringFixed(2))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// mutate writes err or, on success, the updated session.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, id *auth.Identity, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, id.UserID)
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, status int, userID string) {
	s := h.Checkout.Snapshot(userID)
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeSnapshot(e, s)
	})
}

func encodeSnapshot(e *jx.Encoder, s checkout.Snapshot) {
	e.ObjStart()
	e.FieldStart("state")
	e.Str(string(s.State))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range s.Items {
		encodeCartItem(e, it)
	}
	e.ArrEnd()
	strs(e, "coupons", s.Coupons)
	e.FieldStart("breakdown")
	encodeBreakdown(e, s.Breakdown)
	e.FieldStart("slipAcknowledged")
	e.Bool(s.SlipAcknowledged)
	e.FieldStart("pending")
	e.Bool(s.Pending)
	if s.Placed != nil {
		e.FieldStart("placedOrder")
		encodeOrder(e, *s.Placed)
	}
	if s.LastError != nil {
		e.FieldStart("lastError")
		e.Str(s.LastError.Error())
	}
	e.ObjEnd()
}

func encodeCartItem(e *jx.Encoder, it checkout.Item) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(it.ProductID)
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("category")
	e.Str(it.Category)
	e.FieldStart("image")
	e.Str(it.Image)
	money(e, "price", it.Price)
	percent(e, "discountPercent", it.DiscountPercent)
	money(e, "shippingCost", it.ShippingCost)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	money(e, "lineTotal", it.Line().Total())
	e.ObjEnd()
}

func encodeBreakdown(e *jx.Encoder, b pricing.Breakdown) {
	e.ObjStart()
	money(e, "subtotal", b.Subtotal)
	money(e, "discountTotal", b.DiscountTotal)
	money(e, "shippingTotal", b.ShippingTotal)
	money(e, "taxAmount", b.TaxAmount)
	money(e, "totalAmount", b.TotalAmount)
	strs(e, "appliedCoupons", b.AppliedCoupons)
	e.FieldStart("freeShipping")
	e.Bool(b.FreeShipping)
	e.ObjEnd()
}
