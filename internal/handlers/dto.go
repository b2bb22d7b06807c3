package handlers

import (
	"time"

	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/service/estimate"
	"github.com/nkiryanov/creditledger/internal/service/ledger"
	"github.com/nkiryanov/creditledger/internal/service/projection"
)

type transactionDTO struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	Direction     string     `json:"direction"`
	Amount        string     `json:"amount"`
	Description   string     `json:"description,omitempty"`
	ReferenceType string     `json:"referenceType"`
	ReferenceID   string     `json:"referenceId,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func newTransactionDTO(t models.CreditTransaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID.String(),
		Type:          string(t.Type),
		Status:        string(t.Status),
		Direction:     string(t.Direction),
		Amount:        t.Amount.StringFixed(2),
		Description:   t.Description,
		ReferenceType: string(t.Reference.Type),
		ReferenceID:   t.Reference.ID,
		ExpiresAt:     t.ExpiresAt,
		CreatedAt:     t.CreatedAt,
	}
}

func newTransactionDTOs(ts []models.CreditTransaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(ts))
	for _, t := range ts {
		out = append(out, newTransactionDTO(t))
	}
	return out
}

type weekDTO struct {
	WeekID     string     `json:"weekId"`
	OwnerID    string     `json:"ownerId"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
}

func newWeekDTO(w models.Week) weekDTO {
	return weekDTO{WeekID: w.ID, OwnerID: w.OwnerID.String(), ConsumedAt: w.ConsumedAt}
}

type expiringLotDTO struct {
	transactionDTO
	Remaining string `json:"remaining"`
}

func newExpiringLotDTOs(lots []projection.LotState) []expiringLotDTO {
	out := make([]expiringLotDTO, 0, len(lots))
	for _, l := range lots {
		out = append(out, expiringLotDTO{
			transactionDTO: newTransactionDTO(l.Transaction),
			Remaining:      l.Remaining.StringFixed(2),
		})
	}
	return out
}

type walletDTO struct {
	UserID        string    `json:"userId"`
	Balance       string    `json:"balance"`
	PendingExpiry string    `json:"pendingExpiry"`
	TotalEarned   string    `json:"totalEarned"`
	TotalSpent    string    `json:"totalSpent"`
	TotalExpired  string    `json:"totalExpired"`
	TotalRefunded string    `json:"totalRefunded"`
	TotalAdjusted string    `json:"totalAdjusted"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newWalletDTO(w models.Wallet) walletDTO {
	return walletDTO{
		UserID:        w.UserID.String(),
		Balance:       w.Balance.StringFixed(2),
		PendingExpiry: w.PendingExpiry.StringFixed(2),
		TotalEarned:   w.TotalEarned.StringFixed(2),
		TotalSpent:    w.TotalSpent.StringFixed(2),
		TotalExpired:  w.TotalExpired.StringFixed(2),
		TotalRefunded: w.TotalRefunded.StringFixed(2),
		TotalAdjusted: w.TotalAdjusted.StringFixed(2),
		UpdatedAt:     w.UpdatedAt,
	}
}

type breakdownDTO struct {
	Season             string `json:"season"`
	BaseValue          string `json:"baseValue"`
	LocationTier       string `json:"locationTier"`
	LocationMultiplier string `json:"locationMultiplier"`
	RoomTypeTier       string `json:"roomTypeTier"`
	RoomTypeMultiplier string `json:"roomTypeMultiplier"`
}

type estimateDTO struct {
	EstimatedCredits string       `json:"estimatedCredits"`
	Breakdown        breakdownDTO `json:"breakdown"`
	ExpirationDate   time.Time    `json:"expirationDate"`
}

func newEstimateDTO(e estimate.Estimate) estimateDTO {
	return estimateDTO{
		EstimatedCredits: e.Credits.StringFixed(2),
		Breakdown: breakdownDTO{
			Season:             string(e.Breakdown.Season),
			BaseValue:          e.Breakdown.BaseValue.StringFixed(2),
			LocationTier:       e.Breakdown.LocationTier,
			LocationMultiplier: e.Breakdown.LocationMultiplier.String(),
			RoomTypeTier:       e.Breakdown.RoomTypeTier,
			RoomTypeMultiplier: e.Breakdown.RoomTypeMultiplier.String(),
		},
		ExpirationDate: e.ExpirationDate,
	}
}

type paginationDTO struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func newPaginationDTO(p ledger.Pagination) paginationDTO {
	return paginationDTO(p)
}
