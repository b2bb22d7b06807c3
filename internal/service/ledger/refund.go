package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
)

type RefundParams struct {
	UserID                uuid.UUID
	OriginalTransactionID uuid.UUID
	IdempotencyKey        string
}

// RefundCredits returns a completed spend to the user.
// Refunded credits never expire.
func (s *LedgerService) RefundCredits(ctx context.Context, p RefundParams) (Result, error) {
	req := request{
		operation: OperationRefund,
		userID:    p.UserID,
		key:       p.IdempotencyKey,
		hash:      fingerprint(OperationRefund, p.OriginalTransactionID.String()),
	}

	return s.mutate(ctx, req, func(u *unit) (models.CreditTransaction, error) {
		original, err := u.tx.Ledger().Get(ctx, p.OriginalTransactionID, true)
		if err != nil {
			return original, err
		}

		switch {
		case original.UserID != p.UserID:
			return original, apperrors.ErrTransactionNotFound
		case original.Type != models.TransactionSpend:
			return original, fmt.Errorf("%w: %s transaction can not be refunded", apperrors.ErrNotRefundable, original.Type)
		case original.Status == models.StatusRefunded:
			return original, apperrors.ErrAlreadyRefunded
		case original.Status != models.StatusCompleted:
			return original, fmt.Errorf("%w: spend is %s", apperrors.ErrNotRefundable, original.Status)
		}

		refund, err := u.tx.Ledger().Append(ctx, models.CreditTransaction{
			ID:          uuid.New(),
			UserID:      p.UserID,
			Type:        models.TransactionRefund,
			Status:      models.StatusCompleted,
			Direction:   models.DirectionCredit,
			Amount:      original.Amount,
			Description: fmt.Sprintf("Refund of %s", original.Reference),
			Reference:   models.NewReference(models.ReferenceTransaction, original.ID.String()),
			CreatedAt:   u.now,
		})
		if err != nil {
			return refund, err
		}

		if _, err := u.tx.Ledger().TransitionStatus(ctx, original.ID, models.StatusCompleted, models.StatusRefunded); err != nil {
			return refund, err
		}

		return refund, nil
	})
}
