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

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// GetWallet returns counters with the expiry-aware available balance
func (s *LedgerService) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	counters, proj, err := s.snapshot(ctx, userID)
	if err != nil {
		s.observe("wallet", userID, err)
		return models.Wallet{}, err
	}

	w, err := proj.Wallet(counters)
	if err != nil {
		s.observe("wallet", userID, err)
	}
	return w, err
}

type Pagination struct {
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

type TransactionsPage struct {
	Transactions []models.CreditTransaction
	Pagination   Pagination
}

// GetTransactions lists the user's rows newest first. Page starts at 1, zero limit means default
func (s *LedgerService) GetTransactions(ctx context.Context, userID uuid.UUID, page, limit int) (TransactionsPage, error) {
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if page == 0 {
		page = 1
	}
	if page < 1 || limit < 1 || limit > MaxPageLimit {
		return TransactionsPage{}, fmt.Errorf("%w: page %d, limit %d (max %d)", apperrors.ErrInvalidPagination, page, limit, MaxPageLimit)
	}

	total, err := s.storage.Ledger().CountForUser(ctx, userID)
	if err != nil {
		return TransactionsPage{}, err
	}

	txs, err := s.storage.Ledger().ListForUser(ctx, userID, repository.ListOpts{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		return TransactionsPage{}, err
	}

	return TransactionsPage{
		Transactions: txs,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

type Expiring struct {
	Total decimal.Decimal
	Lots  []projection.LotState
}

// GetExpiring lists completed deposits expiring within the next 'days' days with their unspent remainders
func (s *LedgerService) GetExpiring(ctx context.Context, userID uuid.UUID, days int) (Expiring, error) {
	if days < 0 {
		return Expiring{}, fmt.Errorf("%w: days must not be negative, got %d", apperrors.ErrInvalidWindow, days)
	}

	_, proj, err := s.snapshot(ctx, userID)
	if err != nil {
		return Expiring{}, err
	}

	total, lots := proj.ExpiringWithin(time.Duration(days) * 24 * time.Hour)
	return Expiring{Total: total, Lots: lots}, nil
}
