package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestInsufficientCreditsError(t *testing.T) {
	err := NewInsufficientCredits(decimal.NewFromInt(60), decimal.NewFromInt(40))

	require.True(t, err.Shortfall.Equal(decimal.NewFromInt(20)), "shortfall should be required minus available")
	require.ErrorIs(t, err, ErrInsufficientCredits)
	require.ErrorIs(t, fmt.Errorf("spend: %w", err), ErrInsufficientCredits, "wrapped error should match sentinel")
	require.Equal(t, "insufficient credits: required 60.00, available 40.00, shortfall 20.00", err.Error())

	var typed *InsufficientCreditsError
	require.True(t, errors.As(fmt.Errorf("spend: %w", err), &typed))
	require.True(t, typed.Available.Equal(decimal.NewFromInt(40)))
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(fmt.Errorf("deposit: %w", ErrCoordinationTimeout)))
	require.True(t, Retryable(ErrCollaboratorUnavailable))
	require.False(t, Retryable(ErrInsufficientCredits))
	require.False(t, Retryable(ErrInvariantViolation))
}
