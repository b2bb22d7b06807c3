// Package ledger is the orchestrating API over the credit ledger.
//
// Every mutation for a user runs in one db transaction under the user's wallet
// row lock: the ledger is replayed, the business rule checked, a row appended
// and the wallet counters saved. Operations for different users never block
// each other.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/logger"
	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/ratetable"
	"github.com/nkiryanov/creditledger/internal/repository"
	"github.com/nkiryanov/creditledger/internal/service/projection"
)

const (
	defaultCollaboratorTimeout = 5 * time.Second
	snapshotAttempts           = 3
)

// WeekRegistry is the source of deposited weeks
type WeekRegistry interface {
	IsConsumed(ctx context.Context, weekID string) (bool, error)
	MarkConsumed(ctx context.Context, weekID string, userID uuid.UUID) error
}

// Recorder receives operation outcomes, see internal/metrics
type Recorder interface {
	Operation(operation string, err error)
	Credits(typ models.TransactionType, amount decimal.Decimal)
	InvariantViolation()
}

type noopRecorder struct{}

func (noopRecorder) Operation(string, error)                         {}
func (noopRecorder) Credits(models.TransactionType, decimal.Decimal) {}
func (noopRecorder) InvariantViolation()                             {}

type LedgerService struct {
	storage repository.Storage
	rates   ratetable.RateTable

	// External registry; nil means the weeks table of the storage, in the same db tx
	registry WeekRegistry

	collaboratorTimeout time.Duration
	now                 func() time.Time
	logger              logger.Logger
	recorder            Recorder
}

type Option func(*LedgerService)

func WithWeekRegistry(r WeekRegistry) Option {
	return func(s *LedgerService) { s.registry = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(s *LedgerService) { s.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(s *LedgerService) { s.recorder = r }
}

func WithCollaboratorTimeout(d time.Duration) Option {
	return func(s *LedgerService) {
		if d > 0 {
			s.collaboratorTimeout = d
		}
	}
}

func NewService(storage repository.Storage, rates ratetable.RateTable, opts ...Option) *LedgerService {
	s := &LedgerService{
		storage:             storage,
		rates:               rates,
		collaboratorTimeout: defaultCollaboratorTimeout,
		now:                 time.Now,
		logger:              logger.NewNoOpLogger(),
		recorder:            noopRecorder{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Result of a mutation. Replayed is set when an idempotency key matched an earlier request
type Result struct {
	Transaction models.CreditTransaction
	Replayed    bool
}

// Mutation context handed to the operation body
type unit struct {
	tx       repository.Storage
	counters models.WalletCounters
	proj     *projection.Projection
	now      time.Time
}

type request struct {
	operation string
	userID    uuid.UUID
	key       string // idempotency key, optional
	hash      string
}

// mutate runs fn under the user's wallet lock and applies the appended row to the wallet counters
func (s *LedgerService) mutate(ctx context.Context, req request, fn func(u *unit) (models.CreditTransaction, error)) (Result, error) {
	var res Result

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		counters, err := tx.Wallet().Lock(ctx, req.userID)
		if err != nil {
			return err
		}

		if req.key != "" {
			rec, found, err := tx.Idempotency().Get(ctx, req.userID, req.key)
			if err != nil {
				return err
			}
			if found {
				if rec.Operation != req.operation || rec.RequestHash != req.hash {
					return apperrors.ErrIdempotencyKeyReused
				}
				original, err := tx.Ledger().Get(ctx, rec.TransactionID, false)
				if err != nil {
					return err
				}
				res = Result{Transaction: original, Replayed: true}
				return nil
			}
		}

		now := s.now()
		history, err := tx.Ledger().History(ctx, req.userID)
		if err != nil {
			return err
		}
		proj, err := projection.Replay(history, now)
		if err != nil {
			return err
		}
		if !proj.Settled.Equal(counters.Balance) {
			return fmt.Errorf("%w: wallet balance %s differs from ledger sum %s", apperrors.ErrInvariantViolation, counters.Balance, proj.Settled)
		}

		created, err := fn(&unit{tx: tx, counters: counters, proj: proj, now: now})
		if err != nil {
			return err
		}

		if created.IsSettled() {
			counters.Apply(created)
		}
		counters.UpdatedAt = now
		if _, err := tx.Wallet().Save(ctx, counters); err != nil {
			return err
		}

		if req.key != "" {
			err := tx.Idempotency().Save(ctx, models.IdempotencyRecord{
				UserID:        req.userID,
				Key:           req.key,
				Operation:     req.operation,
				RequestHash:   req.hash,
				TransactionID: created.ID,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
		}

		res = Result{Transaction: created}
		return nil
	})

	s.observe(req.operation, req.userID, err)
	if err == nil && !res.Replayed {
		s.recorder.Credits(res.Transaction.Type, res.Transaction.Amount)
	}

	return res, err
}

// observe logs and counts the outcome of an operation by its error class
func (s *LedgerService) observe(operation string, userID uuid.UUID, err error) {
	s.recorder.Operation(operation, err)

	switch {
	case err == nil:
		s.logger.Debug("Ledger operation done", "operation", operation, "user_id", userID)
	case errors.Is(err, apperrors.ErrInvariantViolation), errors.Is(err, apperrors.ErrIllegalTransition):
		s.recorder.InvariantViolation()
		s.logger.Alert("Ledger invariant violated, operation aborted", "operation", operation, "user_id", userID, "error", err)
	case apperrors.Retryable(err):
		s.logger.Warn("Collaborator failed, operation rolled back", "operation", operation, "user_id", userID, "error", err)
	default:
		s.logger.Info("Ledger operation rejected", "operation", operation, "user_id", userID, "error", err)
	}
}

// snapshot reads counters and history consistently without locking:
// the version must not move while the history is read
func (s *LedgerService) snapshot(ctx context.Context, userID uuid.UUID) (models.WalletCounters, *projection.Projection, error) {
	for range snapshotAttempts {
		before, err := s.storage.Wallet().Get(ctx, userID)
		if err != nil {
			return before, nil, err
		}

		history, err := s.storage.Ledger().History(ctx, userID)
		if err != nil {
			return before, nil, err
		}

		after, err := s.storage.Wallet().Get(ctx, userID)
		if err != nil {
			return before, nil, err
		}
		if after.Version != before.Version {
			continue
		}

		proj, err := projection.Replay(history, s.now())
		if err != nil {
			return after, nil, err
		}

		return after, proj, nil
	}

	return models.WalletCounters{}, nil, fmt.Errorf("wallet %s is changing too fast to read, try later: %w", userID, apperrors.ErrCollaboratorUnavailable)
}

// Amounts are positive and use at most the ledger's minimum unit
func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive, got %s", apperrors.ErrInvalidAmount, amount)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: %s is finer than 0.01", apperrors.ErrInvalidAmount, amount)
	}
	return nil
}

// collaborator bounds an external call, a timeout becomes retryable
func (s *LedgerService) collaborator(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.collaboratorTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return fmt.Errorf("%w after %s: %w", apperrors.ErrCoordinationTimeout, s.collaboratorTimeout, err)
	}
	return err
}
