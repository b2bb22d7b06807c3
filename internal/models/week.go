package models

import (
	"time"

	"github.com/google/uuid"
)

// Week is a deposited timeshare week as known to the source registry
type Week struct {
	ID         string
	OwnerID    uuid.UUID
	ConsumedAt *time.Time // nil until converted into credits
}

type IdempotencyRecord struct {
	UserID        uuid.UUID
	Key           string
	Operation     string
	RequestHash   string
	TransactionID uuid.UUID
	CreatedAt     time.Time
}
