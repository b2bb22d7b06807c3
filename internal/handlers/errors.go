package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/handlers/render"
	"github.com/nkiryanov/creditledger/internal/logger"
	"github.com/nkiryanov/creditledger/internal/service/weekregistry"
)

const defaultRetryAfter = 5 * time.Second

type insufficientResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Required  string `json:"required"`
	Available string `json:"available"`
	Shortfall string `json:"shortfall"`
}

// renderLedgerError maps ledger errors to HTTP responses
func renderLedgerError(w http.ResponseWriter, err error, l logger.Logger) {
	var insufficient *apperrors.InsufficientCreditsError

	switch {
	case errors.As(err, &insufficient):
		render.JSONStatus(w, insufficientResponse{
			Error:     render.ServiceErrorType,
			Message:   "Insufficient credits",
			Required:  insufficient.Required.StringFixed(2),
			Available: insufficient.Available.StringFixed(2),
			Shortfall: insufficient.Shortfall.StringFixed(2),
		}, http.StatusPaymentRequired)

	case errors.Is(err, apperrors.ErrInvalidRateInput):
		render.ServiceError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrInvalidAmount),
		errors.Is(err, apperrors.ErrInvalidReference),
		errors.Is(err, apperrors.ErrInvalidPagination),
		errors.Is(err, apperrors.ErrInvalidWindow):
		render.ServiceError(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, apperrors.ErrWeekNotFound):
		render.ServiceError(w, "Week not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrTransactionNotFound):
		render.ServiceError(w, "Transaction not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrWeekNotOwned):
		render.ServiceError(w, "Week belongs to different user", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrWeekAlreadyConsumed):
		render.ServiceError(w, "Week already consumed", http.StatusConflict)
	case errors.Is(err, apperrors.ErrWeekAlreadyExists):
		render.ServiceError(w, "Week already registered", http.StatusConflict)
	case errors.Is(err, apperrors.ErrRegistryExternal):
		render.ServiceError(w, "Weeks are registered in the external registry", http.StatusConflict)
	case errors.Is(err, apperrors.ErrAlreadyRefunded):
		render.ServiceError(w, "Transaction already refunded", http.StatusConflict)
	case errors.Is(err, apperrors.ErrNotRefundable):
		render.ServiceError(w, "Transaction is not refundable", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrIdempotencyKeyReused):
		render.ServiceError(w, "Idempotency key reused with different request", http.StatusUnprocessableEntity)

	case apperrors.Retryable(err):
		after := defaultRetryAfter
		var regErr *weekregistry.Error
		if errors.As(err, &regErr) && regErr.RetryAfter > 0 {
			after = regErr.RetryAfter
		}
		l.Warn("Ledger operation may be retried", "error", err)
		render.RetryLater(w, "Service temporarily unavailable, retry later", after)

	case errors.Is(err, apperrors.ErrInvariantViolation), errors.Is(err, apperrors.ErrIllegalTransition):
		l.Alert("Ledger invariant violated", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)

	default:
		l.Error("Ledger operation failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
