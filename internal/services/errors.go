package services

import (
	"errors"
	"net/http"

	"github.com/wave745/goontest-sub001/internal/db"
)

// Unlock error taxonomy. Every coordinator failure wraps exactly one of these.
var (
	ErrNotConnected      = errors.New("no wallet connected")
	ErrPaymentDeclined   = errors.New("payment declined")
	ErrProviderError     = errors.New("payment provider error")
	ErrPaymentReplay     = errors.New("payment signature already used")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrNotAvailable      = errors.New("post not available")
	ErrPostNotFound      = errors.New("post not found")
	ErrInvalidRequest    = errors.New("invalid request")

	// ErrPaymentMismatch: the chain transaction does not pay the expected amount
	// to the expected wallet. Reported to callers as a declined payment.
	ErrPaymentMismatch = errors.New("payment does not match post price")

	// Relay provider transaction checks.
	ErrBadTx             = errors.New("bad tx")
	ErrPartialSignFailed = errors.New("partial sign failed")
	ErrBroadcastFailed   = errors.New("broadcast failed")
)

// Machine-readable codes carried in HTTP error bodies.
const (
	CodeNotConnected      = "NOT_CONNECTED"
	CodePaymentDeclined   = "PAYMENT_DECLINED"
	CodeProviderError     = "PROVIDER_ERROR"
	CodePaymentReplay     = "PAYMENT_REPLAY"
	CodeLedgerUnavailable = "LEDGER_UNAVAILABLE"
	CodeNotAvailable      = "NOT_AVAILABLE"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL"
)

// Classify maps an error to its HTTP status and code. Unknown errors are 500.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotConnected):
		return http.StatusUnauthorized, CodeNotConnected
	case errors.Is(err, ErrPaymentDeclined), errors.Is(err, ErrPaymentMismatch):
		return http.StatusPaymentRequired, CodePaymentDeclined
	case errors.Is(err, ErrProviderError):
		return http.StatusFailedDependency, CodeProviderError
	case errors.Is(err, ErrPaymentReplay):
		return http.StatusConflict, CodePaymentReplay
	case errors.Is(err, ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, CodeLedgerUnavailable
	case errors.Is(err, ErrNotAvailable):
		return http.StatusNotFound, CodeNotAvailable
	case errors.Is(err, ErrPostNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
