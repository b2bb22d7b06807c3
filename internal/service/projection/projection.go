// Package projection derives expiry-aware balances from a user's ledger.
//
// Ledger rows are replayed in creation order. Credits (deposits, refunds,
// credit adjustments) open lots; debits (spends, debit adjustments) consume
// the lots that are still live at the debit moment, earliest expiry first and
// non-expiring lots last. EXPIRE rows close the remainder of their deposit.
// A deposit that is past due but not swept yet is excluded from the available
// balance: its remainder is reported as pending expiry.
package projection

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
)

type lot struct {
	tx        models.CreditTransaction
	remaining decimal.Decimal
}

func (l *lot) liveAt(at time.Time) bool {
	return l.tx.ExpiresAt == nil || l.tx.ExpiresAt.After(at)
}

// LotState is a credit row with its unconsumed amount
type LotState struct {
	Transaction models.CreditTransaction
	Remaining   decimal.Decimal
}

type Projection struct {
	At time.Time

	// Sum of all settled rows, matches the persisted wallet balance
	Settled decimal.Decimal

	// Remainders of past-due deposits the sweep has not reached
	PendingExpiry decimal.Decimal

	// What the user may spend at 'At'
	Available decimal.Decimal

	lots []*lot
	byID map[uuid.UUID]*lot
}

// Replay the user's ledger at the moment 'at'
func Replay(txs []models.CreditTransaction, at time.Time) (*Projection, error) {
	ordered := slices.Clone(txs)
	slices.SortStableFunc(ordered, func(a, b models.CreditTransaction) int {
		return cmp.Or(cmp.Compare(a.Seq, b.Seq), a.CreatedAt.Compare(b.CreatedAt))
	})

	p := &Projection{
		At:   at,
		byID: make(map[uuid.UUID]*lot),
	}

	for _, tx := range ordered {
		if !tx.IsSettled() {
			continue
		}
		p.Settled = p.Settled.Add(tx.Signed())

		switch {
		case tx.Type == models.TransactionExpire:
			if err := p.close(tx); err != nil {
				return nil, err
			}
		case tx.Direction == models.DirectionCredit:
			l := &lot{tx: tx, remaining: tx.Amount}
			p.lots = append(p.lots, l)
			p.byID[tx.ID] = l
		default:
			if err := p.consume(tx); err != nil {
				return nil, err
			}
		}
	}

	for _, l := range p.lots {
		if !l.tx.IsPastDue(at) || !l.remaining.IsPositive() {
			continue
		}
		if l.tx.Status != models.StatusCompleted {
			return nil, fmt.Errorf("%w: expired deposit %s keeps remainder %s", apperrors.ErrInvariantViolation, l.tx.ID, l.remaining)
		}
		p.PendingExpiry = p.PendingExpiry.Add(l.remaining)
	}

	p.Available = p.Settled.Sub(p.PendingExpiry)
	if p.Available.IsNegative() {
		return nil, fmt.Errorf("%w: available balance %s is negative", apperrors.ErrInvariantViolation, p.Available)
	}

	return p, nil
}

func (p *Projection) close(tx models.CreditTransaction) error {
	depositID, err := uuid.Parse(tx.Reference.ID)
	if err != nil {
		return fmt.Errorf("%w: expire row %s has malformed reference", apperrors.ErrInvariantViolation, tx.ID)
	}

	l, ok := p.byID[depositID]
	if !ok || l.tx.Type != models.TransactionDeposit {
		return fmt.Errorf("%w: expire row %s references unknown deposit %s", apperrors.ErrInvariantViolation, tx.ID, depositID)
	}
	if l.remaining.LessThan(tx.Amount) {
		return fmt.Errorf("%w: expire row %s exceeds deposit remainder", apperrors.ErrInvariantViolation, tx.ID)
	}

	l.remaining = l.remaining.Sub(tx.Amount)
	return nil
}

func (p *Projection) consume(tx models.CreditTransaction) error {
	live := make([]*lot, 0, len(p.lots))
	for _, l := range p.lots {
		if l.remaining.IsPositive() && l.liveAt(tx.CreatedAt) {
			live = append(live, l)
		}
	}
	slices.SortStableFunc(live, consumeOrder)

	left := tx.Amount
	for _, l := range live {
		if !left.IsPositive() {
			break
		}
		take := decimal.Min(left, l.remaining)
		l.remaining = l.remaining.Sub(take)
		left = left.Sub(take)
	}

	if left.IsPositive() {
		return fmt.Errorf("%w: debit %s is not covered by live credits (uncovered %s)", apperrors.ErrInvariantViolation, tx.ID, left)
	}

	return nil
}

// Earliest expiry first, non-expiring lots last, creation order otherwise
func consumeOrder(a, b *lot) int {
	switch {
	case a.tx.ExpiresAt == nil && b.tx.ExpiresAt == nil:
		return 0
	case a.tx.ExpiresAt == nil:
		return 1
	case b.tx.ExpiresAt == nil:
		return -1
	default:
		return a.tx.ExpiresAt.Compare(*b.tx.ExpiresAt)
	}
}

// Remaining unconsumed amount of a credit row
func (p *Projection) Remaining(id uuid.UUID) (decimal.Decimal, bool) {
	l, ok := p.byID[id]
	if !ok {
		return decimal.Zero, false
	}
	return l.remaining, true
}

// ExpiringWithin returns completed deposits with expiration in [At, At+window] and the total remainder.
// Fully spent deposits are not listed.
func (p *Projection) ExpiringWithin(window time.Duration) (decimal.Decimal, []LotState) {
	until := p.At.Add(window)
	total := decimal.Zero
	var states []LotState

	for _, l := range p.lots {
		tx := l.tx
		if tx.Type != models.TransactionDeposit || tx.Status != models.StatusCompleted || tx.ExpiresAt == nil {
			continue
		}
		if tx.ExpiresAt.Before(p.At) || tx.ExpiresAt.After(until) || !l.remaining.IsPositive() {
			continue
		}
		total = total.Add(l.remaining)
		states = append(states, LotState{Transaction: tx, Remaining: l.remaining})
	}

	slices.SortStableFunc(states, func(a, b LotState) int {
		return a.Transaction.ExpiresAt.Compare(*b.Transaction.ExpiresAt)
	})

	return total, states
}

// Wallet view combining persisted counters with the expiry-aware balance
func (p *Projection) Wallet(c models.WalletCounters) (models.Wallet, error) {
	if !c.Balance.Equal(p.Settled) {
		return models.Wallet{}, fmt.Errorf("%w: wallet balance %s differs from ledger sum %s", apperrors.ErrInvariantViolation, c.Balance, p.Settled)
	}

	return models.Wallet{
		UserID:        c.UserID,
		Balance:       p.Available,
		PendingExpiry: p.PendingExpiry,
		TotalEarned:   c.TotalEarned,
		TotalSpent:    c.TotalSpent,
		TotalExpired:  c.TotalExpired,
		TotalRefunded: c.TotalRefunded,
		TotalAdjusted: c.TotalAdjusted,
		Version:       c.Version,
		UpdatedAt:     c.UpdatedAt,
	}, nil
}
