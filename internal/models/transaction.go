package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionSpend      TransactionType = "SPEND"
	TransactionRefund     TransactionType = "REFUND"
	TransactionExpire     TransactionType = "EXPIRE"
	TransactionAdjustment TransactionType = "ADJUSTMENT"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusRefunded  TransactionStatus = "REFUNDED"
	StatusExpired   TransactionStatus = "EXPIRED"
	StatusCancelled TransactionStatus = "CANCELLED"
)

// Direction of the balance change; only adjustments may be debits besides spends and expirations
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// CreditTransaction is an immutable ledger row.
// Amount and CreatedAt never change; Status changes only through CanTransition.
type CreditTransaction struct {
	ID          uuid.UUID
	Seq         int64 // total order of rows, assigned by the store
	UserID      uuid.UUID
	Type        TransactionType
	Status      TransactionStatus
	Direction   Direction
	Amount      decimal.Decimal // positive magnitude
	Description string
	Reference   Reference
	ExpiresAt   *time.Time // completed deposits only
	CreatedAt   time.Time
}

// Direction implied by the type. Adjustments carry their own direction.
func DirectionOf(t TransactionType) Direction {
	switch t {
	case TransactionSpend, TransactionExpire:
		return DirectionDebit
	default:
		return DirectionCredit
	}
}

// Signed returns amount with the sign of the balance change
func (t CreditTransaction) Signed() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Whether the deposit has passed its expiration moment at 'now'.
// A deposit is still valid at the exact moment it expires.
func (t CreditTransaction) IsPastDue(now time.Time) bool {
	return t.Type == TransactionDeposit && t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// Rows that count toward the balance; pending and cancelled rows never do
func (t CreditTransaction) IsSettled() bool {
	switch t.Status {
	case StatusCompleted, StatusRefunded, StatusExpired:
		return true
	default:
		return false
	}
}

type transition struct {
	typ  TransactionType
	from TransactionStatus
	to   TransactionStatus
}

// The only status changes allowed on persisted rows
var allowedTransitions = map[transition]struct{}{
	{TransactionDeposit, StatusPending, StatusCompleted}: {},
	{TransactionDeposit, StatusPending, StatusCancelled}: {},
	{TransactionDeposit, StatusCompleted, StatusExpired}: {},
	{TransactionSpend, StatusPending, StatusCompleted}:   {},
	{TransactionSpend, StatusPending, StatusCancelled}:   {},
	{TransactionSpend, StatusCompleted, StatusRefunded}:  {},
	{TransactionRefund, StatusPending, StatusCompleted}:  {},
	{TransactionRefund, StatusPending, StatusCancelled}:  {},
}

func CanTransition(t TransactionType, from, to TransactionStatus) bool {
	_, ok := allowedTransitions[transition{t, from, to}]
	return ok
}
