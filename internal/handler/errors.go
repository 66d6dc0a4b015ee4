package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/settings"
	"github.com/xenking/storefront/internal/payment"
)

// badRequest is a request that could not be interpreted.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) error { return &badRequest{msg: msg} }

// statusOf classifies err. Unclassified errors come from the stores and are
// reported as 503 so clients retry.
func statusOf(err error) (int, string) {
	var (
		bad        *badRequest
		productErr *product.ValidationError
		couponErr  *coupon.ValidationError
		authErr    *auth.ValidationError
		transErr   *order.TransitionError
	)
	switch {
	case errors.Is(err, errBadJSON):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &bad):
		return http.StatusBadRequest, bad.msg
	case errors.As(err, &productErr):
		return http.StatusBadRequest, productErr.Error()
	case errors.As(err, &couponErr):
		return http.StatusBadRequest, couponErr.Error()
	case errors.As(err, &authErr):
		return http.StatusBadRequest, authErr.Error()
	case errors.Is(err, settings.ErrInvalidTaxRate),
		errors.Is(err, order.ErrNoteRequired):
		return http.StatusBadRequest, rootMessage(err)

	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, rootMessage(err)
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, rootMessage(err)

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, rootMessage(err)

	case errors.Is(err, checkout.ErrConfirmationPending),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, coupon.ErrAlreadyExists):
		return http.StatusConflict, rootMessage(err)
	case errors.As(err, &transErr):
		return http.StatusConflict, transErr.Error()

	case checkout.IsRejection(err),
		errors.Is(err, payment.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, err.Error()

	default:
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	}
}

// rootMessage returns the message of the innermost error so wrapping
// context does not leak into responses.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// fail writes the error response for err and logs server-side failures.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, msg)
}
