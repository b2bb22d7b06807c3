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

// WeekRepo is the built-in week registry, used when no external registry is configured
type WeekRepo struct {
	DB DBTX
}

const createWeek = `-- name: CreateWeek
INSERT INTO weeks (id, owner_id, consumed_at)
VALUES ($1, $2, $3)
`

func (r *WeekRepo) CreateWeek(ctx context.Context, w models.Week) error {
	_, err := r.DB.Exec(ctx, createWeek, w.ID, w.OwnerID, w.ConsumedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", apperrors.ErrWeekAlreadyExists, w.ID)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getWeek = `-- name: GetWeek
SELECT id, owner_id, consumed_at FROM weeks
WHERE id = $1
`

func (r *WeekRepo) GetWeek(ctx context.Context, weekID string) (models.Week, error) {
	rows, _ := r.DB.Query(ctx, getWeek, weekID)
	w, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.Week, error) {
		var w models.Week
		err := row.Scan(&w.ID, &w.OwnerID, &w.ConsumedAt)
		return w, err
	})

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWeekNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

func (r *WeekRepo) IsConsumed(ctx context.Context, weekID string) (bool, error) {
	w, err := r.GetWeek(ctx, weekID)
	if err != nil {
		return false, err
	}
	return w.ConsumedAt != nil, nil
}

const markWeekConsumed = `-- name: MarkWeekConsumed
UPDATE weeks
SET consumed_at = $3, consumed_by = $2
WHERE id = $1 AND owner_id = $2 AND consumed_at IS NULL
`

func (r *WeekRepo) MarkConsumed(ctx context.Context, weekID string, userID uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, markWeekConsumed, weekID, userID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: tell why
	w, err := r.GetWeek(ctx, weekID)
	switch {
	case err != nil:
		return err
	case w.OwnerID != userID:
		return apperrors.ErrWeekNotOwned
	case w.ConsumedAt != nil:
		return apperrors.ErrWeekAlreadyConsumed
	default:
		return errors.New("programming error, should never be here")
	}
}
