package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/repository"
	"github.com/nkiryanov/creditledger/internal/service/estimate"
)

const (
	OperationDeposit = "deposit"
	OperationSpend   = "spend"
	OperationRefund  = "refund"
	OperationAdjust  = "adjust"
	OperationExpire  = "expire"

	OperationRegisterWeek = "register_week"
)

// Estimate credits for a week without touching the ledger
func (s *LedgerService) Estimate(in estimate.Input) (estimate.Estimate, error) {
	return estimate.Calculate(s.rates, in, s.now())
}

// Weeks table of the storage, stamped with the unit's clock
type builtinRegistry struct {
	weeks repository.WeekRepo
	at    time.Time
}

func (r builtinRegistry) IsConsumed(ctx context.Context, weekID string) (bool, error) {
	return r.weeks.IsConsumed(ctx, weekID)
}

func (r builtinRegistry) MarkConsumed(ctx context.Context, weekID string, userID uuid.UUID) error {
	return r.weeks.MarkConsumed(ctx, weekID, userID, r.at)
}

type DepositParams struct {
	UserID             uuid.UUID
	WeekID             string
	Season             string
	LocationMultiplier decimal.Decimal
	RoomTypeMultiplier decimal.Decimal
	IdempotencyKey     string
}

type DepositResult struct {
	Result
	CreditsEarned decimal.Decimal
}

// DepositWeek converts the user's week into credits.
// The deposit row and the week's consumed mark are applied together or not at all.
func (s *LedgerService) DepositWeek(ctx context.Context, p DepositParams) (DepositResult, error) {
	weekID := strings.TrimSpace(p.WeekID)
	if weekID == "" {
		return DepositResult{}, fmt.Errorf("%w: week id is required", apperrors.ErrInvalidReference)
	}

	in := estimate.Input{Season: p.Season, LocationMultiplier: p.LocationMultiplier, RoomTypeMultiplier: p.RoomTypeMultiplier}
	if _, err := estimate.Calculate(s.rates, in, s.now()); err != nil {
		s.observe(OperationDeposit, p.UserID, err)
		return DepositResult{}, err
	}

	req := request{
		operation: OperationDeposit,
		userID:    p.UserID,
		key:       p.IdempotencyKey,
		hash:      fingerprint(OperationDeposit, weekID, p.Season, p.LocationMultiplier.String(), p.RoomTypeMultiplier.String()),
	}

	// Set once an external registry accepted the mark: it is outside the db tx
	// and stays consumed if the unit rolls back afterwards
	markedExternally := false

	res, err := s.mutate(ctx, req, func(u *unit) (models.CreditTransaction, error) {
		registry := s.registry
		if registry == nil {
			registry = builtinRegistry{weeks: u.tx.Week(), at: u.now}
		}

		var consumed bool
		err := s.collaborator(ctx, func(ctx context.Context) (err error) {
			consumed, err = registry.IsConsumed(ctx, weekID)
			return err
		})
		if err != nil {
			return models.CreditTransaction{}, err
		}
		if consumed {
			return models.CreditTransaction{}, apperrors.ErrWeekAlreadyConsumed
		}

		// Estimate again with the unit's clock so expiration matches created_at
		est, err := estimate.Calculate(s.rates, in, u.now)
		if err != nil {
			return models.CreditTransaction{}, err
		}

		deposit, err := u.tx.Ledger().Append(ctx, models.CreditTransaction{
			ID:          uuid.New(),
			UserID:      p.UserID,
			Type:        models.TransactionDeposit,
			Status:      models.StatusCompleted,
			Direction:   models.DirectionCredit,
			Amount:      est.Credits,
			Description: fmt.Sprintf("Deposit of week %s (%s, %s, %s)", weekID, est.Breakdown.Season, est.Breakdown.LocationTier, est.Breakdown.RoomTypeTier),
			Reference:   models.NewReference(models.ReferenceWeek, weekID),
			ExpiresAt:   &est.ExpirationDate,
			CreatedAt:   u.now,
		})
		if err != nil {
			return deposit, err
		}

		err = s.collaborator(ctx, func(ctx context.Context) error {
			return registry.MarkConsumed(ctx, weekID, p.UserID)
		})
		if err != nil {
			return deposit, err
		}
		markedExternally = s.registry != nil

		return deposit, nil
	})
	if err != nil {
		if markedExternally {
			s.logger.Alert("Week consumed in registry but deposit rolled back",
				"week_id", weekID, "user_id", p.UserID, "error", err)
		}
		return DepositResult{}, err
	}

	return DepositResult{Result: res, CreditsEarned: res.Transaction.Amount}, nil
}
