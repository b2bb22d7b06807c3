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
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/repository"
)

const transactionColumns = `id, seq, user_id, type, status, direction, amount, description, reference_type, reference_id, expires_at, created_at`

// Unique partial indexes guarding one-time effects
const (
	refundOnceIndex = "credit_transactions_refund_once_idx"
	expireOnceIndex = "credit_transactions_expire_once_idx"
	weekOnceIndex   = "credit_transactions_week_once_idx"
)

type LedgerRepo struct {
	DB DBTX
}

const appendTransaction = `-- name: AppendTransaction
INSERT INTO credit_transactions (id, user_id, type, status, direction, amount, description, reference_type, reference_id, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + transactionColumns

func (r *LedgerRepo) Append(ctx context.Context, t models.CreditTransaction) (models.CreditTransaction, error) {
	rows, _ := r.DB.Query(ctx, appendTransaction,
		t.ID, t.UserID, t.Type, t.Status, t.Direction, t.Amount, t.Description,
		t.Reference.Type, t.Reference.ID, t.ExpiresAt, t.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case refundOnceIndex:
				return created, apperrors.ErrAlreadyRefunded
			case weekOnceIndex:
				return created, apperrors.ErrWeekAlreadyConsumed
			case expireOnceIndex:
				return created, fmt.Errorf("%w: deposit %s expired twice", apperrors.ErrInvariantViolation, t.Reference.ID)
			}
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getTransaction = `-- name: GetTransaction
SELECT ` + transactionColumns + ` FROM credit_transactions
WHERE id = $1
`

func (r *LedgerRepo) Get(ctx context.Context, id uuid.UUID, forUpdate bool) (models.CreditTransaction, error) {
	query := getTransaction
	if forUpdate {
		query += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, query, id)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

const listForUser = `-- name: ListForUser
SELECT ` + transactionColumns + ` FROM credit_transactions
WHERE user_id = $1
ORDER BY created_at DESC, seq DESC
LIMIT $2 OFFSET $3
`

func (r *LedgerRepo) ListForUser(ctx context.Context, userID uuid.UUID, opts repository.ListOpts) ([]models.CreditTransaction, error) {
	rows, _ := r.DB.Query(ctx, listForUser, userID, opts.Limit, opts.Offset)
	txs, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return txs, nil
}

const countForUser = `-- name: CountForUser
SELECT count(*) FROM credit_transactions WHERE user_id = $1
`

func (r *LedgerRepo) CountForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	rows, _ := r.DB.Query(ctx, countForUser, userID)
	count, err := pgx.CollectOneRow(rows, pgx.RowTo[int])
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

const history = `-- name: History
SELECT ` + transactionColumns + ` FROM credit_transactions
WHERE user_id = $1
ORDER BY seq
`

func (r *LedgerRepo) History(ctx context.Context, userID uuid.UUID) ([]models.CreditTransaction, error) {
	rows, _ := r.DB.Query(ctx, history, userID)
	txs, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return txs, nil
}

const sumByTypeAndStatus = `-- name: SumByTypeAndStatus
SELECT COALESCE(SUM(amount), 0) FROM credit_transactions
WHERE user_id = $1 AND type = $2 AND status = $3
`

func (r *LedgerRepo) SumByTypeAndStatus(ctx context.Context, userID uuid.UUID, typ models.TransactionType, status models.TransactionStatus) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, sumByTypeAndStatus, userID, typ, status).Scan(&sum)
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}
	return sum, nil
}

const transitionStatus = `-- name: TransitionStatus
UPDATE credit_transactions
SET status = $3
WHERE id = $1 AND type = $4 AND status = $2
RETURNING ` + transactionColumns

func (r *LedgerRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.TransactionStatus) (models.CreditTransaction, error) {
	current, err := r.Get(ctx, id, false)
	if err != nil {
		return current, err
	}

	if !models.CanTransition(current.Type, from, to) {
		return current, fmt.Errorf("%w: %s %s from %s to %s", apperrors.ErrIllegalTransition, current.Type, id, from, to)
	}

	rows, _ := r.DB.Query(ctx, transitionStatus, id, from, to, current.Type)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return current, fmt.Errorf("%w: %s is %s, not %s", apperrors.ErrIllegalTransition, id, current.Status, from)
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

const listDueDeposits = `-- name: ListDueDeposits
SELECT ` + transactionColumns + ` FROM credit_transactions
WHERE type = 'DEPOSIT' AND status = 'COMPLETED' AND expires_at < $1
ORDER BY expires_at
LIMIT $2
`

func (r *LedgerRepo) ListDueDeposits(ctx context.Context, now time.Time, limit int) ([]models.CreditTransaction, error) {
	rows, _ := r.DB.Query(ctx, listDueDeposits, now, limit)
	txs, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return txs, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.CreditTransaction, error) {
	var t models.CreditTransaction
	err := row.Scan(
		&t.ID, &t.Seq, &t.UserID, &t.Type, &t.Status, &t.Direction, &t.Amount, &t.Description,
		&t.Reference.Type, &t.Reference.ID, &t.ExpiresAt, &t.CreatedAt,
	)
	return t, err
}
