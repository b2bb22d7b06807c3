package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Persisted wallet counters, updated in the same tx as each ledger change
type WalletCounters struct {
	UserID        uuid.UUID
	Balance       decimal.Decimal
	TotalEarned   decimal.Decimal
	TotalSpent    decimal.Decimal
	TotalExpired  decimal.Decimal
	TotalRefunded decimal.Decimal
	TotalAdjusted decimal.Decimal // net, may be negative
	Version       int64
	UpdatedAt     time.Time
}

// Apply adds the effect of a new settled transaction to the counters
func (c *WalletCounters) Apply(t CreditTransaction) {
	switch t.Type {
	case TransactionDeposit:
		c.TotalEarned = c.TotalEarned.Add(t.Amount)
	case TransactionSpend:
		c.TotalSpent = c.TotalSpent.Add(t.Amount)
	case TransactionRefund:
		c.TotalRefunded = c.TotalRefunded.Add(t.Amount)
	case TransactionExpire:
		c.TotalExpired = c.TotalExpired.Add(t.Amount)
	case TransactionAdjustment:
		c.TotalAdjusted = c.TotalAdjusted.Add(t.Signed())
	}
	c.Balance = c.Balance.Add(t.Signed())
}

// Wallet is the expiry-aware view of a user's credits
type Wallet struct {
	UserID        uuid.UUID
	Balance       decimal.Decimal // available now, past-due deposits excluded
	PendingExpiry decimal.Decimal // past-due remainders the sweep has not processed yet
	TotalEarned   decimal.Decimal
	TotalSpent    decimal.Decimal
	TotalExpired  decimal.Decimal
	TotalRefunded decimal.Decimal
	TotalAdjusted decimal.Decimal
	Version       int64
	UpdatedAt     time.Time
}
