// Package handler exposes the storefront over a JSON HTTP API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	// PromptPayTarget is the phone number, national ID or e-wallet ID that
	// receives payments.
	PromptPayTarget string
	// QRSize is the edge length of rendered QR codes in pixels.
	QRSize int
	// Location buckets revenue reports. Defaults to UTC.
	Location *time.Location
}

// CouponAdmin manages the coupon catalog.
type CouponAdmin interface {
	List(ctx context.Context) ([]coupon.Coupon, error)
	Create(ctx context.Context, c *coupon.Coupon) error
	SetActive(ctx context.Context, code string, active bool) error
}

// TaxSettings reads and updates the store tax rate.
type TaxSettings interface {
	TaxRate() decimal.Decimal
	SetTaxRate(ctx context.Context, rate decimal.Decimal) error
}

// Deps are the domain services behind the API.
type Deps struct {
	Products product.Repository
	Checkout *checkout.Service
	Orders   *order.Service
	Coupons  CouponAdmin
	Settings TaxSettings
	Auth     *auth.Service
	APIKeys  *auth.APIKeys
}

// Handler serves the storefront API.
type Handler struct {
	cfg Config
	Deps
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.QRSize <= 0 {
		cfg.QRSize = 256
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Handler{cfg: cfg, Deps: deps}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)

	mux.HandleFunc("POST /api/auth/register", h.register)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.HandleFunc("GET /api/auth/me", h.user(h.me))

	mux.HandleFunc("GET /api/checkout", h.user(h.getCheckout))
	mux.HandleFunc("DELETE /api/checkout", h.user(h.abandonCheckout))
	mux.HandleFunc("POST /api/checkout/items", h.user(h.addItem))
	mux.HandleFunc("DELETE /api/checkout/items", h.user(h.clearCart))
	mux.HandleFunc("PATCH /api/checkout/items/{productId}", h.user(h.setQuantity))
	mux.HandleFunc("DELETE /api/checkout/items/{productId}", h.user(h.removeItem))
	mux.HandleFunc("POST /api/checkout/coupons", h.user(h.applyCoupon))
	mux.HandleFunc("DELETE /api/checkout/coupons/{code}", h.user(h.removeCoupon))
	mux.HandleFunc("POST /api/checkout/review", h.user(h.confirmReview))
	mux.HandleFunc("GET /api/checkout/qr", h.user(h.paymentQR))
	mux.HandleFunc("POST /api/checkout/payment/slip", h.user(h.acknowledgeSlip))
	mux.HandleFunc("POST /api/checkout/payment/confirm", h.user(h.confirmPayment))

	mux.HandleFunc("GET /api/orders", h.user(h.listOrders))

	mux.HandleFunc("POST /api/admin/products", h.admin(h.createProduct))
	mux.HandleFunc("PUT /api/admin/products/{id}", h.admin(h.updateProduct))
	mux.HandleFunc("DELETE /api/admin/products/{id}", h.admin(h.deleteProduct))
	mux.HandleFunc("GET /api/admin/coupons", h.admin(h.listCoupons))
	mux.HandleFunc("POST /api/admin/coupons", h.admin(h.createCoupon))
	mux.HandleFunc("PUT /api/admin/coupons/{code}/active", h.admin(h.setCouponActive))
	mux.HandleFunc("POST /api/admin/orders/{id}/verify", h.admin(h.verifyOrder))
	mux.HandleFunc("POST /api/admin/orders/{id}/issue", h.admin(h.reportIssue))
	mux.HandleFunc("GET /api/admin/settings/tax-rate", h.admin(h.getTaxRate))
	mux.HandleFunc("PUT /api/admin/settings/tax-rate", h.admin(h.setTaxRate))
	mux.HandleFunc("GET /api/admin/revenue", h.admin(h.revenue))
}
