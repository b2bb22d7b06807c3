package models

import (
	"fmt"
	"strings"
)

type ReferenceType string

const (
	ReferenceWeek        ReferenceType = "WEEK"
	ReferenceBooking     ReferenceType = "BOOKING"
	ReferenceSwap        ReferenceType = "SWAP"
	ReferenceTransaction ReferenceType = "TRANSACTION"
	ReferenceAdmin       ReferenceType = "ADMIN"
)

// Reference links a transaction to the entity that caused it
type Reference struct {
	Type ReferenceType
	ID   string
}

func NewReference(typ ReferenceType, id string) Reference {
	return Reference{Type: typ, ID: strings.TrimSpace(id)}
}

// Reference types each transaction type may point at
var referenceRules = map[TransactionType][]ReferenceType{
	TransactionDeposit:    {ReferenceWeek},
	TransactionSpend:      {ReferenceBooking, ReferenceSwap},
	TransactionRefund:     {ReferenceTransaction},
	TransactionExpire:     {ReferenceTransaction},
	TransactionAdjustment: {ReferenceAdmin},
}

// Validate checks the reference is allowed for the transaction type
func (r Reference) Validate(t TransactionType) error {
	allowed, ok := referenceRules[t]
	if !ok {
		return fmt.Errorf("unknown transaction type %q", t)
	}

	if r.ID == "" && r.Type != ReferenceAdmin {
		return fmt.Errorf("reference id is required for %s", r.Type)
	}

	for _, a := range allowed {
		if a == r.Type {
			return nil
		}
	}

	return fmt.Errorf("reference type %q is not allowed for %s transaction", r.Type, t)
}

func (r Reference) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}
