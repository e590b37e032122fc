// Package api exposes a read/write HTTP surface over native/ledger.Engine,
// grounded on gateway/routes/router.go's chi mounting shape and
// gateway/middleware/auth.go's JWT bearer middleware, adapted from a
// multi-service reverse proxy into a single-service router.
package api

import (
	"errors"
	"net/http"

	"github.com/coreledger/marginbank/native/ledger"
)

// statusFor maps a ledger sentinel error to an HTTP status code, the way
// services/otc-gateway/server and services/lending/server map engine errors
// to their respective transport errors (gRPC status codes there; HTTP status
// codes here since this surface is chi, not gRPC).
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ledger.ErrIllegalArgument):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrAccountNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrLendingAccountBalanceSlotsFull):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrBankDepositCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrBadAccountHealth):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrAccountIllegalPostLiquidationState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrBorrowingNotAllowed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrModuleDisabled), errors.Is(err, ledger.ErrAccountDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrOracle):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrMath):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}
