package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
)

func TestResult(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ResultOK},
		{"insufficient", apperrors.NewInsufficientCredits(decimal.NewFromInt(2), decimal.NewFromInt(1)), ResultRejected},
		{"wrapped validation", fmt.Errorf("bad: %w", apperrors.ErrInvalidAmount), ResultRejected},
		{"timeout", fmt.Errorf("%w: registry", apperrors.ErrCoordinationTimeout), ResultRetryable},
		{"invariant", fmt.Errorf("%w: negative", apperrors.ErrInvariantViolation), ResultInvariant},
		{"unknown", errors.New("db error: connection reset"), ResultError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Result(tt.err))
		})
	}
}

func TestMetrics(t *testing.T) {
	m := New()

	m.Operation("spend", nil)
	m.Operation("spend", nil)
	m.Operation("spend", apperrors.ErrInsufficientCredits)
	m.Credits(models.TransactionSpend, decimal.RequireFromString("12.50"))
	m.SweepExpired()
	m.InvariantViolation()

	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("spend", ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("spend", ResultRejected)))
	require.Equal(t, 12.5, testutil.ToFloat64(m.credits.WithLabelValues("SPEND")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sweepExpired))
	require.Equal(t, 1.0, testutil.ToFloat64(m.invariantViolations))

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `creditledger_operations_total{operation="spend",result="ok"} 2`)
	require.Contains(t, string(body), "creditledger_sweep_expired_total 1")
}
