package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/repository"
)

// RegisterWeek adds an owned week to the built-in registry so it can be deposited.
// With an external registry configured the weeks live there and registration is refused.
func (s *LedgerService) RegisterWeek(ctx context.Context, weekID string, ownerID uuid.UUID) (models.Week, error) {
	week := models.Week{ID: strings.TrimSpace(weekID), OwnerID: ownerID}

	err := s.registerWeek(ctx, week)
	s.observe(OperationRegisterWeek, ownerID, err)
	if err != nil {
		return models.Week{}, err
	}

	return week, nil
}

func (s *LedgerService) registerWeek(ctx context.Context, week models.Week) error {
	switch {
	case s.registry != nil:
		return apperrors.ErrRegistryExternal
	case week.ID == "":
		return fmt.Errorf("%w: week id is required", apperrors.ErrInvalidReference)
	case week.OwnerID == uuid.Nil:
		return fmt.Errorf("%w: owner id is required", apperrors.ErrInvalidReference)
	}

	return s.storage.InTx(ctx, func(tx repository.Storage) error {
		return tx.Week().CreateWeek(ctx, week)
	})
}
