package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/catalog"
	"github.com/xenking/astroplay-pos/internal/domain/checkout"
	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/domain/product"
)

var (
	errNotFound         = errors.New("not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errUnauthorized     = errors.New("authentication required")
	errForbidden        = errors.New("administrator role required")
	errStoreUnavailable = errors.New("catalog store unavailable")
)

// statusClientClosedRequest reports a request the client abandoned before the
// response was ready.
const statusClientClosedRequest = 499

// badRequestError is a malformed request.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// storeError marks a failure talking to the catalog store.
func storeError(err error) error {
	return fmt.Errorf("%w: %w", errStoreUnavailable, err)
}

// apiError is the body of every error response.
type apiError struct {
	status  int
	message string
	field   string
}

// classify maps err to its HTTP response. The second result reports whether
// the error is unexpected and must be logged.
func classify(err error) (apiError, bool) {
	var (
		verr *product.ValidationError
		bad  *badRequestError
	)
	switch {
	case errors.As(err, &verr):
		e := apiError{status: http.StatusUnprocessableEntity, message: verr.Error()}
		if f, ok := verr.First(); ok {
			e.field = f.Field
		}
		return e, false
	case errors.As(err, &bad):
		return apiError{status: http.StatusBadRequest, message: bad.msg}, false
	case errors.Is(err, catalog.ErrConfirmationRequired):
		return apiError{status: http.StatusBadRequest, message: catalog.ErrConfirmationRequired.Error()}, false
	case errors.Is(err, errUnauthorized),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrSessionInvalid):
		msg := errUnauthorized.Error()
		if errors.Is(err, auth.ErrInvalidCredentials) {
			msg = auth.ErrInvalidCredentials.Error()
		}
		return apiError{status: http.StatusUnauthorized, message: msg}, false
	case errors.Is(err, errForbidden):
		return apiError{status: http.StatusForbidden, message: errForbidden.Error()}, false
	case errors.Is(err, errNotFound):
		return apiError{status: http.StatusNotFound, message: errNotFound.Error()}, false
	case errors.Is(err, product.ErrNotFound):
		return apiError{status: http.StatusNotFound, message: product.ErrNotFound.Error()}, false
	case errors.Is(err, errMethodNotAllowed):
		return apiError{status: http.StatusMethodNotAllowed, message: errMethodNotAllowed.Error()}, false
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		return apiError{status: http.StatusConflict, message: checkout.ErrCheckoutInProgress.Error()}, false
	case errors.Is(err, pos.ErrBusy):
		return apiError{status: http.StatusConflict, message: err.Error()}, false
	case errors.Is(err, checkout.ErrEmptyCart):
		return apiError{status: http.StatusConflict, message: checkout.ErrEmptyCart.Error()}, false
	case errors.Is(err, product.ErrInsufficientStock):
		return apiError{status: http.StatusConflict, message: product.ErrInsufficientStock.Error()}, false
	case errors.Is(err, catalog.ErrSaveFailed):
		return apiError{status: http.StatusBadGateway, message: catalog.ErrSaveFailed.Error()}, true
	case errors.Is(err, errStoreUnavailable):
		return apiError{status: http.StatusBadGateway, message: errStoreUnavailable.Error()}, true
	case errors.Is(err, context.Canceled):
		return apiError{status: statusClientClosedRequest, message: "request canceled"}, false
	case errors.Is(err, context.DeadlineExceeded):
		return apiError{status: http.StatusGatewayTimeout, message: "request timed out"}, true
	default:
		return apiError{status: http.StatusInternalServerError, message: "internal server error"}, true
	}
}

// writeError renders err as {"code","message","field"?}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, unexpected := classify(err)
	if unexpected {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", e.status),
			zap.Error(err),
		)
	}

	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("code", func(enc *jx.Encoder) { enc.Int(e.status) })
		enc.Field("message", func(enc *jx.Encoder) { enc.Str(e.message) })
		if e.field != "" {
			enc.Field("field", func(enc *jx.Encoder) { enc.Str(e.field) })
		}
	})
	writeJSON(w, e.status, &enc)
}
