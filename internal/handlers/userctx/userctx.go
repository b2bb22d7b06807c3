package userctx

import (
	"context"

	"github.com/nkiryanov/creditledger/internal/service/auth/tokenmanager"
)

type ctxKey string

const (
	principalKey      ctxKey = "principal"
	idempotencyKeyKey ctxKey = "idempotency-key"
)

// Create a new context with the authenticated caller
func New(ctx context.Context, p tokenmanager.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Extract the authenticated caller from the context
func FromContext(ctx context.Context) (tokenmanager.Principal, bool) {
	p, ok := ctx.Value(principalKey).(tokenmanager.Principal)
	return p, ok
}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyKey, key)
}

// Idempotency key of the request, empty if the client sent none
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyKey).(string)
	return key
}
