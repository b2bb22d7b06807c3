package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
)

const walletColumns = `user_id, balance, total_earned, total_spent, total_expired, total_refunded, total_adjusted, version, updated_at`

type WalletRepo struct {
	DB DBTX
}

const ensureWallet = `-- name: EnsureWallet
INSERT INTO wallets (user_id, updated_at)
VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING
`

const lockWallet = `-- name: LockWallet
SELECT ` + walletColumns + ` FROM wallets
WHERE user_id = $1
FOR UPDATE
`

// Lock serializes every mutation of the user's ledger.
// Must be called inside a db transaction, the lock is released on commit or rollback
func (r *WalletRepo) Lock(ctx context.Context, userID uuid.UUID) (models.WalletCounters, error) {
	_, err := r.DB.Exec(ctx, ensureWallet, userID, time.Now())
	if err != nil {
		return models.WalletCounters{}, fmt.Errorf("db error: %w", err)
	}

	rows, _ := r.DB.Query(ctx, lockWallet, userID)
	c, err := pgx.CollectOneRow(rows, rowToCounters)
	if err != nil {
		return c, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}

const getWallet = `-- name: GetWallet
SELECT ` + walletColumns + ` FROM wallets
WHERE user_id = $1
`

func (r *WalletRepo) Get(ctx context.Context, userID uuid.UUID) (models.WalletCounters, error) {
	rows, _ := r.DB.Query(ctx, getWallet, userID)
	c, err := pgx.CollectOneRow(rows, rowToCounters)

	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, pgx.ErrNoRows):
		return models.WalletCounters{UserID: userID}, nil
	default:
		return c, fmt.Errorf("db error: %w", err)
	}
}

const saveWallet = `-- name: SaveWallet
UPDATE wallets
SET balance = $2, total_earned = $3, total_spent = $4, total_expired = $5, total_refunded = $6, total_adjusted = $7,
	version = version + 1, updated_at = $8
WHERE user_id = $1 AND version = $9
RETURNING ` + walletColumns

func (r *WalletRepo) Save(ctx context.Context, c models.WalletCounters) (models.WalletCounters, error) {
	rows, _ := r.DB.Query(ctx, saveWallet,
		c.UserID, c.Balance, c.TotalEarned, c.TotalSpent, c.TotalExpired, c.TotalRefunded, c.TotalAdjusted,
		c.UpdatedAt, c.Version,
	)
	saved, err := pgx.CollectOneRow(rows, rowToCounters)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, pgx.ErrNoRows):
		return c, fmt.Errorf("%w: wallet %s changed concurrently (version %d)", apperrors.ErrInvariantViolation, c.UserID, c.Version)
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation:
		return c, fmt.Errorf("%w: wallet %s balance would be negative", apperrors.ErrInvariantViolation, c.UserID)
	default:
		return c, fmt.Errorf("db error: %w", err)
	}
}

func rowToCounters(row pgx.CollectableRow) (models.WalletCounters, error) {
	var c models.WalletCounters
	err := row.Scan(&c.UserID, &c.Balance, &c.TotalEarned, &c.TotalSpent, &c.TotalExpired, &c.TotalRefunded, &c.TotalAdjusted, &c.Version, &c.UpdatedAt)
	return c, err
}
