// Package metrics exposes ledger counters for Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
)

// Operation results
const (
	ResultOK        = "ok"
	ResultRejected  = "rejected"
	ResultRetryable = "retryable"
	ResultInvariant = "invariant"
	ResultError     = "error"
)

var rejections = []error{
	apperrors.ErrInvalidRateInput,
	apperrors.ErrInvalidAmount,
	apperrors.ErrInvalidReference,
	apperrors.ErrInvalidPagination,
	apperrors.ErrInvalidWindow,
	apperrors.ErrInsufficientCredits,
	apperrors.ErrWeekNotFound,
	apperrors.ErrWeekNotOwned,
	apperrors.ErrWeekAlreadyConsumed,
	apperrors.ErrWeekAlreadyExists,
	apperrors.ErrRegistryExternal,
	apperrors.ErrTransactionNotFound,
	apperrors.ErrAlreadyRefunded,
	apperrors.ErrNotRefundable,
	apperrors.ErrIdempotencyKeyReused,
}

type Metrics struct {
	operations          *prometheus.CounterVec
	credits             *prometheus.CounterVec
	sweepExpired        prometheus.Counter
	invariantViolations prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers collectors in a fresh registry, so several instances may live in one process
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditledger",
			Name:      "operations_total",
			Help:      "Ledger operations by result",
		}, []string{"operation", "result"}),
		credits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditledger",
			Name:      "credits_total",
			Help:      "Credits moved by transaction type",
		}, []string{"type"}),
		sweepExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "creditledger",
			Name:      "sweep_expired_total",
			Help:      "Deposits moved to EXPIRED by the sweep",
		}),
		invariantViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "creditledger",
			Name:      "invariant_violations_total",
			Help:      "Operations aborted on a broken ledger invariant, must stay zero",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) Operation(operation string, err error) {
	m.operations.WithLabelValues(operation, Result(err)).Inc()
}

func (m *Metrics) Credits(typ models.TransactionType, amount decimal.Decimal) {
	m.credits.WithLabelValues(string(typ)).Add(amount.InexactFloat64())
}

func (m *Metrics) InvariantViolation() {
	m.invariantViolations.Inc()
}

func (m *Metrics) SweepExpired() {
	m.sweepExpired.Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Result label of an operation error
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, apperrors.ErrInvariantViolation), errors.Is(err, apperrors.ErrIllegalTransition):
		return ResultInvariant
	case apperrors.Retryable(err):
		return ResultRetryable
	}

	for _, r := range rejections {
		if errors.Is(err, r) {
			return ResultRejected
		}
	}
	return ResultError
}
