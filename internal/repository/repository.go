package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/models"
)

// TransactionLedger: append-only store of credit transactions
type LedgerRepo interface {
	// Append a new row. Seq is assigned by the store and returned
	Append(ctx context.Context, tx models.CreditTransaction) (models.CreditTransaction, error)

	// Get row by id, optionally locking it until the db tx ends
	// Must return apperrors.ErrTransactionNotFound if there is no such row
	Get(ctx context.Context, id uuid.UUID, forUpdate bool) (models.CreditTransaction, error)

	// Page of user rows ordered by creation, newest first
	ListForUser(ctx context.Context, userID uuid.UUID, opts ListOpts) ([]models.CreditTransaction, error)
	CountForUser(ctx context.Context, userID uuid.UUID) (int, error)

	// Every user row in creation order, for replay
	History(ctx context.Context, userID uuid.UUID) ([]models.CreditTransaction, error)

	SumByTypeAndStatus(ctx context.Context, userID uuid.UUID, typ models.TransactionType, status models.TransactionStatus) (decimal.Decimal, error)

	// The only in-place mutation: status change allowed by models.CanTransition
	// If the row is not in 'from' status must return apperrors.ErrIllegalTransition
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.TransactionStatus) (models.CreditTransaction, error)

	// Completed deposits with expires_at strictly before 'now', oldest expiration first
	ListDueDeposits(ctx context.Context, now time.Time, limit int) ([]models.CreditTransaction, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}

// Per-user wallet counters; the row doubles as the per-user lock
type WalletRepo interface {
	// Create counters if missing and lock them until the db tx ends
	Lock(ctx context.Context, userID uuid.UUID) (models.WalletCounters, error)

	// Read counters without locking; zero counters if the user has none
	Get(ctx context.Context, userID uuid.UUID) (models.WalletCounters, error)

	// Save counters, bumping the version. Fails if the stored version differs from c.Version
	Save(ctx context.Context, c models.WalletCounters) (models.WalletCounters, error)
}

// Built-in week registry
type WeekRepo interface {
	// Returns apperrors.ErrWeekAlreadyExists for a known week id
	CreateWeek(ctx context.Context, week models.Week) error
	GetWeek(ctx context.Context, weekID string) (models.Week, error)
	IsConsumed(ctx context.Context, weekID string) (bool, error)

	// Must return apperrors.ErrWeekNotFound, ErrWeekNotOwned or ErrWeekAlreadyConsumed when not applicable
	MarkConsumed(ctx context.Context, weekID string, userID uuid.UUID, at time.Time) error
}

type IdempotencyRepo interface {
	Get(ctx context.Context, userID uuid.UUID, key string) (models.IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec models.IdempotencyRecord) error
}

type Storage interface {
	Ledger() LedgerRepo
	Wallet() WalletRepo
	Week() WeekRepo
	Idempotency() IdempotencyRepo

	// Run fn in a db transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
