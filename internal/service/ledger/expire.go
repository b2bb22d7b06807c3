package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/repository"
	"github.com/nkiryanov/creditledger/internal/service/projection"
)

// ListDueDeposits returns completed deposits whose expiration has passed
func (s *LedgerService) ListDueDeposits(ctx context.Context, limit int) ([]models.CreditTransaction, error) {
	return s.storage.Ledger().ListDueDeposits(ctx, s.now(), limit)
}

type ExpireResult struct {
	Deposit models.CreditTransaction

	// Row carrying the forfeited remainder; nil when the deposit was fully spent
	Expire *models.CreditTransaction

	// False when there was nothing to do: already expired or not due yet
	Expired bool
}

// ExpireDeposit moves a past-due deposit to EXPIRED and forfeits its unspent remainder.
// Calling it again for the same deposit is a no-op.
func (s *LedgerService) ExpireDeposit(ctx context.Context, depositID uuid.UUID) (ExpireResult, error) {
	var res ExpireResult
	var userID uuid.UUID

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		deposit, err := tx.Ledger().Get(ctx, depositID, false)
		if err != nil {
			return err
		}
		userID = deposit.UserID

		counters, err := tx.Wallet().Lock(ctx, deposit.UserID)
		if err != nil {
			return err
		}

		// Status may have changed while waiting for the lock
		deposit, err = tx.Ledger().Get(ctx, depositID, true)
		if err != nil {
			return err
		}
		res.Deposit = deposit

		now := s.now()
		if deposit.Type != models.TransactionDeposit || deposit.Status != models.StatusCompleted || !deposit.IsPastDue(now) {
			return nil
		}

		history, err := tx.Ledger().History(ctx, deposit.UserID)
		if err != nil {
			return err
		}
		proj, err := projection.Replay(history, now)
		if err != nil {
			return err
		}
		remaining, ok := proj.Remaining(deposit.ID)
		if !ok {
			return fmt.Errorf("%w: deposit %s missing from its user's history", apperrors.ErrInvariantViolation, deposit.ID)
		}

		res.Deposit, err = tx.Ledger().TransitionStatus(ctx, deposit.ID, models.StatusCompleted, models.StatusExpired)
		if err != nil {
			return err
		}
		res.Expired = true

		if remaining.IsPositive() {
			expire, err := tx.Ledger().Append(ctx, models.CreditTransaction{
				ID:          uuid.New(),
				UserID:      deposit.UserID,
				Type:        models.TransactionExpire,
				Status:      models.StatusCompleted,
				Direction:   models.DirectionDebit,
				Amount:      remaining,
				Description: fmt.Sprintf("Expiration of %s", deposit.Reference),
				Reference:   models.NewReference(models.ReferenceTransaction, deposit.ID.String()),
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			counters.Apply(expire)
			res.Expire = &expire
		}

		counters.UpdatedAt = now
		_, err = tx.Wallet().Save(ctx, counters)
		return err
	})

	s.observe(OperationExpire, userID, err)
	if err == nil && res.Expire != nil {
		s.recorder.Credits(models.TransactionExpire, res.Expire.Amount)
	}

	return res, err
}

type sumPart struct {
	typ    models.TransactionType
	status models.TransactionStatus
}

// Reconcile recomputes the wallet counters from the ledger and fails on any difference.
// Runs under the wallet lock so no mutation interleaves.
func (s *LedgerService) Reconcile(ctx context.Context, userID uuid.UUID) error {
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		return reconcile(ctx, tx, userID, s.now())
	})
	if err != nil {
		s.observe("reconcile", userID, err)
	}
	return err
}

func reconcile(ctx context.Context, tx repository.Storage, userID uuid.UUID, now time.Time) error {
	counters, err := tx.Wallet().Lock(ctx, userID)
	if err != nil {
		return err
	}
	history, err := tx.Ledger().History(ctx, userID)
	if err != nil {
		return err
	}
	proj, err := projection.Replay(history, now)
	if err != nil {
		return err
	}

	checks := []struct {
		name    string
		counter decimal.Decimal
		parts   []sumPart
	}{
		{"total_earned", counters.TotalEarned, []sumPart{
			{models.TransactionDeposit, models.StatusCompleted},
			{models.TransactionDeposit, models.StatusExpired},
		}},
		{"total_spent", counters.TotalSpent, []sumPart{
			{models.TransactionSpend, models.StatusCompleted},
			{models.TransactionSpend, models.StatusRefunded},
		}},
		{"total_refunded", counters.TotalRefunded, []sumPart{{models.TransactionRefund, models.StatusCompleted}}},
		{"total_expired", counters.TotalExpired, []sumPart{{models.TransactionExpire, models.StatusCompleted}}},
	}

	for _, c := range checks {
		total := decimal.Zero
		for _, p := range c.parts {
			v, err := tx.Ledger().SumByTypeAndStatus(ctx, userID, p.typ, p.status)
			if err != nil {
				return err
			}
			total = total.Add(v)
		}
		if !total.Equal(c.counter) {
			return fmt.Errorf("%w: %s is %s, ledger says %s", apperrors.ErrInvariantViolation, c.name, c.counter, total)
		}
	}

	// Adjustments carry their sign in the direction, a plain sum by type would lose it
	adjusted := decimal.Zero
	for _, t := range history {
		if t.Type == models.TransactionAdjustment && t.IsSettled() {
			adjusted = adjusted.Add(t.Signed())
		}
	}
	if !counters.TotalAdjusted.Equal(adjusted) {
		return fmt.Errorf("%w: total_adjusted is %s, ledger says %s", apperrors.ErrInvariantViolation, counters.TotalAdjusted, adjusted)
	}

	if !counters.Balance.Equal(proj.Settled) {
		return fmt.Errorf("%w: balance is %s, ledger says %s", apperrors.ErrInvariantViolation, counters.Balance, proj.Settled)
	}

	return nil
}
