package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/creditledger/internal/handlers/middleware"
	"github.com/nkiryanov/creditledger/internal/logger"
	"github.com/nkiryanov/creditledger/internal/service/auth/tokenmanager"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type tokenParser interface {
	ParseAccess(ctx context.Context, access string) (tokenmanager.Principal, error)
}

// NewRouter builds the credit API. metrics may be nil.
func NewRouter(
	ledgerService ledgerService,
	tokens tokenParser,
	metrics http.Handler,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(tokens)
	withAuth := func(h http.Handler) http.Handler {
		return chain(h, authMiddleware, middleware.IdempotencyKey)
	}
	withAdmin := func(h http.Handler) http.Handler {
		return chain(h, authMiddleware, middleware.AdminOnly, middleware.IdempotencyKey)
	}

	credits := http.NewServeMux()

	credits.Handle("POST /estimate", withAuth(handleEstimate(ledgerService, logger)))
	credits.Handle("POST /deposit", withAuth(handleDeposit(ledgerService, logger)))
	credits.Handle("GET /affordability", withAuth(handleAffordability(ledgerService, logger)))
	credits.Handle("POST /spend", withAuth(handleSpend(ledgerService, logger)))
	credits.Handle("POST /refund", withAuth(handleRefund(ledgerService, logger)))
	credits.Handle("POST /adjustments", withAdmin(handleAdjust(ledgerService, logger)))
	credits.Handle("POST /weeks", withAdmin(handleRegisterWeek(ledgerService, logger)))
	credits.Handle("GET /wallet", withAuth(handleWallet(ledgerService, logger)))
	credits.Handle("GET /transactions", withAuth(handleListTransactions(ledgerService, logger)))
	credits.Handle("GET /expiring", withAuth(handleExpiring(ledgerService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/credits/", http.StripPrefix("/api/credits", credits))
	if metrics != nil {
		root.Handle("GET /metrics", metrics)
	}

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}
