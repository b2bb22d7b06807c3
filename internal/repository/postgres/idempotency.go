package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
)

type IdempotencyRepo struct {
	DB DBTX
}

const getIdempotencyRecord = `-- name: GetIdempotencyRecord
SELECT user_id, key, operation, request_hash, transaction_id, created_at FROM idempotency_keys
WHERE user_id = $1 AND key = $2
`

func (r *IdempotencyRepo) Get(ctx context.Context, userID uuid.UUID, key string) (models.IdempotencyRecord, bool, error) {
	rows, _ := r.DB.Query(ctx, getIdempotencyRecord, userID, key)
	rec, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.IdempotencyRecord, error) {
		var rec models.IdempotencyRecord
		err := row.Scan(&rec.UserID, &rec.Key, &rec.Operation, &rec.RequestHash, &rec.TransactionID, &rec.CreatedAt)
		return rec, err
	})

	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return rec, false, nil
	default:
		return rec, false, fmt.Errorf("db error: %w", err)
	}
}

const saveIdempotencyRecord = `-- name: SaveIdempotencyRecord
INSERT INTO idempotency_keys (user_id, key, operation, request_hash, transaction_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (r *IdempotencyRepo) Save(ctx context.Context, rec models.IdempotencyRecord) error {
	_, err := r.DB.Exec(ctx, saveIdempotencyRecord, rec.UserID, rec.Key, rec.Operation, rec.RequestHash, rec.TransactionID, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return apperrors.ErrIdempotencyKeyReused
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
