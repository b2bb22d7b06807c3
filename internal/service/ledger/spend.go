package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
)

type Affordability struct {
	CanAfford bool
	Balance   decimal.Decimal // available now
	Shortfall decimal.Decimal // zero when affordable
}

// CheckAffordability is advisory only: SpendCredits checks the balance again under the lock
func (s *LedgerService) CheckAffordability(ctx context.Context, userID uuid.UUID, required decimal.Decimal) (Affordability, error) {
	if required.IsNegative() {
		return Affordability{}, fmt.Errorf("%w: required credits must not be negative", apperrors.ErrInvalidAmount)
	}

	_, proj, err := s.snapshot(ctx, userID)
	if err != nil {
		return Affordability{}, err
	}

	a := Affordability{
		CanAfford: proj.Available.GreaterThanOrEqual(required),
		Balance:   proj.Available,
		Shortfall: decimal.Zero,
	}
	if !a.CanAfford {
		a.Shortfall = required.Sub(proj.Available)
	}

	return a, nil
}

type SpendParams struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	ReferenceType  models.ReferenceType
	ReferenceID    string
	Description    string
	IdempotencyKey string
}

// SpendCredits debits the user's available credits for a booking or a swap
func (s *LedgerService) SpendCredits(ctx context.Context, p SpendParams) (Result, error) {
	ref := models.NewReference(p.ReferenceType, p.ReferenceID)
	if err := validAmount(p.Amount); err != nil {
		return Result{}, err
	}
	if err := ref.Validate(models.TransactionSpend); err != nil {
		return Result{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidReference, err)
	}

	req := request{
		operation: OperationSpend,
		userID:    p.UserID,
		key:       p.IdempotencyKey,
		hash:      fingerprint(OperationSpend, p.Amount.StringFixed(2), ref.String()),
	}

	return s.mutate(ctx, req, func(u *unit) (models.CreditTransaction, error) {
		if u.proj.Available.LessThan(p.Amount) {
			return models.CreditTransaction{}, apperrors.NewInsufficientCredits(p.Amount, u.proj.Available)
		}

		description := p.Description
		if description == "" {
			description = fmt.Sprintf("Spend on %s %s", ref.Type, ref.ID)
		}

		return u.tx.Ledger().Append(ctx, models.CreditTransaction{
			ID:          uuid.New(),
			UserID:      p.UserID,
			Type:        models.TransactionSpend,
			Status:      models.StatusCompleted,
			Direction:   models.DirectionDebit,
			Amount:      p.Amount,
			Description: description,
			Reference:   ref,
			CreatedAt:   u.now,
		})
	})
}

type AdjustParams struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal // signed: positive credits the user, negative debits
	Reason         string
	AdminID        string
	IdempotencyKey string
}

// Adjust corrects a balance with a new ADJUSTMENT row, history is never edited
func (s *LedgerService) Adjust(ctx context.Context, p AdjustParams) (Result, error) {
	if err := validAmount(p.Amount.Abs()); err != nil {
		return Result{}, err
	}
	if p.Reason == "" {
		return Result{}, fmt.Errorf("%w: adjustment reason is required", apperrors.ErrInvalidReference)
	}

	direction := models.DirectionCredit
	if p.Amount.IsNegative() {
		direction = models.DirectionDebit
	}
	amount := p.Amount.Abs()

	req := request{
		operation: OperationAdjust,
		userID:    p.UserID,
		key:       p.IdempotencyKey,
		hash:      fingerprint(OperationAdjust, p.Amount.StringFixed(2), p.Reason, p.AdminID),
	}

	return s.mutate(ctx, req, func(u *unit) (models.CreditTransaction, error) {
		if direction == models.DirectionDebit && u.proj.Available.LessThan(amount) {
			return models.CreditTransaction{}, apperrors.NewInsufficientCredits(amount, u.proj.Available)
		}

		return u.tx.Ledger().Append(ctx, models.CreditTransaction{
			ID:          uuid.New(),
			UserID:      p.UserID,
			Type:        models.TransactionAdjustment,
			Status:      models.StatusCompleted,
			Direction:   direction,
			Amount:      amount,
			Description: p.Reason,
			Reference:   models.NewReference(models.ReferenceAdmin, p.AdminID),
			CreatedAt:   u.now,
		})
	})
}
