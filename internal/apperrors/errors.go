package apperrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Validation errors: rejected before any mutation
var (
	ErrInvalidRateInput  = errors.New("invalid rate input")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrInvalidPagination = errors.New("invalid pagination")
	ErrInvalidWindow     = errors.New("invalid expiration window")
)

// Business rule rejections
var (
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrWeekNotFound         = errors.New("week not found")
	ErrWeekNotOwned         = errors.New("week belongs to different user")
	ErrWeekAlreadyConsumed  = errors.New("week already consumed")
	ErrWeekAlreadyExists    = errors.New("week already registered")
	ErrRegistryExternal     = errors.New("weeks are registered in the external registry")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrAlreadyRefunded      = errors.New("transaction already refunded")
	ErrNotRefundable        = errors.New("transaction is not refundable")
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with different request")
)

// Coordination failures: the whole unit was rolled back, safe to retry
var (
	ErrCoordinationTimeout     = errors.New("collaborator call timed out")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// Internal invariant violations: never clamped, the operation is aborted
var (
	ErrInvariantViolation = errors.New("ledger invariant violated")
	ErrIllegalTransition  = errors.New("illegal transaction status transition")
)

// InsufficientCreditsError carries the numbers of a rejected debit
type InsufficientCreditsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
}

func NewInsufficientCredits(required, available decimal.Decimal) *InsufficientCreditsError {
	return &InsufficientCreditsError{
		Required:  required,
		Available: available,
		Shortfall: required.Sub(available),
	}
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %s, available %s, shortfall %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2), e.Shortfall.StringFixed(2))
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// Retryable reports whether the client may repeat the request as is
func Retryable(err error) bool {
	return errors.Is(err, ErrCoordinationTimeout) || errors.Is(err, ErrCollaboratorUnavailable)
}
