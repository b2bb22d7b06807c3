package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/handlers/middleware"
	"github.com/nkiryanov/creditledger/internal/handlers/render"
	"github.com/nkiryanov/creditledger/internal/handlers/userctx"
	"github.com/nkiryanov/creditledger/internal/logger"
	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/service/estimate"
	"github.com/nkiryanov/creditledger/internal/service/ledger"
)

const defaultExpiringDays = 30

type ledgerService interface {
	Estimate(in estimate.Input) (estimate.Estimate, error)
	DepositWeek(ctx context.Context, p ledger.DepositParams) (ledger.DepositResult, error)
	CheckAffordability(ctx context.Context, userID uuid.UUID, required decimal.Decimal) (ledger.Affordability, error)
	SpendCredits(ctx context.Context, p ledger.SpendParams) (ledger.Result, error)
	RefundCredits(ctx context.Context, p ledger.RefundParams) (ledger.Result, error)
	Adjust(ctx context.Context, p ledger.AdjustParams) (ledger.Result, error)
	RegisterWeek(ctx context.Context, weekID string, ownerID uuid.UUID) (models.Week, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	GetTransactions(ctx context.Context, userID uuid.UUID, page, limit int) (ledger.TransactionsPage, error)
	GetExpiring(ctx context.Context, userID uuid.UUID, days int) (ledger.Expiring, error)
}

type transactionResponse struct {
	Transaction transactionDTO `json:"transaction"`
}

// renderMutation writes 201 for a fresh transaction and 200 with a marker header for a replayed one
func renderMutation(w http.ResponseWriter, res ledger.Result, data any) {
	if res.Replayed {
		w.Header().Set(middleware.IdempotentReplayedHeader, "true")
		render.JSON(w, data)
		return
	}
	render.Created(w, data)
}

func handleEstimate(ls ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Season             string          `json:"season" validate:"required"`
		LocationMultiplier decimal.Decimal `json:"locationMultiplier" validate:"required,dec_positive"`
		RoomTypeMultiplier decimal.Decimal `json:"roomTypeMultiplier" validate:"required,dec_positive"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		est, err := ls.Estimate(estimate.Input{
			Season:             req.Season,
			LocationMultiplier: req.LocationMultiplier,
			RoomTypeMultiplier: req.RoomTypeMultiplier,
		})
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		render.JSON(w, newEstimateDTO(est))
	})
}

func handleDeposit(ls ledgerService, l logger.Logger) http.Handler {
	type request struct {
		WeekID             string          `json:"weekId" validate:"required,max=255"`
		Season             string          `json:"season" validate:"required"`
		LocationMultiplier decimal.Decimal `json:"locationMultiplier" validate:"required,dec_positive"`
		RoomTypeMultiplier decimal.Decimal `json:"roomTypeMultiplier" validate:"required,dec_positive"`
	}

	type response struct {
		Transaction   transactionDTO `json:"transaction"`
		CreditsEarned string         `json:"creditsEarned"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := ls.DepositWeek(r.Context(), ledger.DepositParams{
			UserID:             user.UserID,
			WeekID:             req.WeekID,
			Season:             req.Season,
			LocationMultiplier: req.LocationMultiplier,
			RoomTypeMultiplier: req.RoomTypeMultiplier,
			IdempotencyKey:     userctx.IdempotencyKey(r.Context()),
		})
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		renderMutation(w, res.Result, response{
			Transaction:   newTransactionDTO(res.Transaction),
			CreditsEarned: res.CreditsEarned.StringFixed(2),
		})
	})
}

func handleAffordability(ls ledgerService, l logger.Logger) http.Handler {
	type response struct {
		CanAfford bool   `json:"canAfford"`
		Balance   string `json:"balance"`
		Shortfall string `json:"shortfall"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		required, err := decimal.NewFromString(r.URL.Query().Get("required"))
		if err != nil {
			render.QueryError(w, "required", errors.New("must be a decimal amount"))
			return
		}

		a, err := ls.CheckAffordability(r.Context(), user.UserID, required)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		render.JSON(w, response{
			CanAfford: a.CanAfford,
			Balance:   a.Balance.StringFixed(2),
			Shortfall: a.Shortfall.StringFixed(2),
		})
	})
}

func handleSpend(ls ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Amount        decimal.Decimal `json:"amount" validate:"required,dec_positive"`
		ReferenceType string          `json:"referenceType" validate:"required,oneof=BOOKING SWAP"`
		ReferenceID   string          `json:"referenceId" validate:"required,max=255"`
		Description   string          `json:"description" validate:"max=500"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := ls.SpendCredits(r.Context(), ledger.SpendParams{
			UserID:         user.UserID,
			Amount:         req.Amount,
			ReferenceType:  models.ReferenceType(req.ReferenceType),
			ReferenceID:    req.ReferenceID,
			Description:    req.Description,
			IdempotencyKey: userctx.IdempotencyKey(r.Context()),
		})
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		renderMutation(w, res, transactionResponse{newTransactionDTO(res.Transaction)})
	})
}

func handleRefund(ls ledgerService, l logger.Logger) http.Handler {
	type request struct {
		OriginalTransactionID string `json:"originalTransactionId" validate:"required,uuid"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := ls.RefundCredits(r.Context(), ledger.RefundParams{
			UserID:                user.UserID,
			OriginalTransactionID: uuid.MustParse(req.OriginalTransactionID),
			IdempotencyKey:        userctx.IdempotencyKey(r.Context()),
		})
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		renderMutation(w, res, transactionResponse{newTransactionDTO(res.Transaction)})
	})
}

func handleAdjust(ls ledgerService, l logger.Logger) http.Handler {
	type request struct {
		UserID string          `json:"userId" validate:"required,uuid"`
		Amount decimal.Decimal `json:"amount" validate:"required,dec_nonzero"`
		Reason string          `json:"reason" validate:"required,max=500"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := ls.Adjust(r.Context(), ledger.AdjustParams{
			UserID:         uuid.MustParse(req.UserID),
			Amount:         req.Amount,
			Reason:         req.Reason,
			AdminID:        admin.UserID.String(),
			IdempotencyKey: userctx.IdempotencyKey(r.Context()),
		})
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		l.Info("Manual credit adjustment", "admin", admin.UserID, "user", req.UserID, "amount", req.Amount.String())
		renderMutation(w, res, transactionResponse{newTransactionDTO(res.Transaction)})
	})
}

func handleRegisterWeek(ls ledgerService, l logger.Logger) http.Handler {
	type request struct {
		WeekID  string `json:"weekId" validate:"required,max=100"`
		OwnerID string `json:"ownerId" validate:"required,uuid"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		week, err := ls.RegisterWeek(r.Context(), req.WeekID, uuid.MustParse(req.OwnerID))
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		l.Info("Week registered", "admin", admin.UserID, "week", week.ID, "owner", week.OwnerID)
		render.Created(w, newWeekDTO(week))
	})
}

func handleWallet(ls ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		wallet, err := ls.GetWallet(r.Context(), user.UserID)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		render.JSON(w, newWalletDTO(wallet))
	})
}

func handleListTransactions(ls ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Transactions []transactionDTO `json:"transactions"`
		Pagination   paginationDTO    `json:"pagination"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		page, err := intQuery(r, "page", 0)
		if err != nil {
			render.QueryError(w, "page", err)
			return
		}
		limit, err := intQuery(r, "limit", 0)
		if err != nil {
			render.QueryError(w, "limit", err)
			return
		}

		result, err := ls.GetTransactions(r.Context(), user.UserID, page, limit)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		render.JSON(w, response{
			Transactions: newTransactionDTOs(result.Transactions),
			Pagination:   newPaginationDTO(result.Pagination),
		})
	})
}

func handleExpiring(ls ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Total        string           `json:"total"`
		Transactions []expiringLotDTO `json:"transactions"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		days, err := intQuery(r, "days", defaultExpiringDays)
		if err != nil {
			render.QueryError(w, "days", err)
			return
		}

		exp, err := ls.GetExpiring(r.Context(), user.UserID, days)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		render.JSON(w, response{
			Total:        exp.Total.StringFixed(2),
			Transactions: newExpiringLotDTOs(exp.Lots),
		})
	})
}

// intQuery reads an optional integer query parameter
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	return v, nil
}
