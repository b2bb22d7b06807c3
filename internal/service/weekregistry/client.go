package weekregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/logger"
)

const (
	CodeRetryAfter = "retry-after"
	CodeUnknown    = "unknown"
)

const defaultRetryAfter = 60 * time.Second

// Error is returned when the registry can't answer now.
// It unwraps to apperrors.ErrCollaboratorUnavailable so callers treat it as retryable
type Error struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("week registry: code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{apperrors.ErrCollaboratorUnavailable, e.Err}
}

func newError(code string, retryAfter time.Duration, err error) *Error {
	return &Error{Code: code, RetryAfter: retryAfter, Err: err}
}

type weekState struct {
	ID       string    `json:"id"`
	OwnerID  uuid.UUID `json:"ownerId"`
	Consumed bool      `json:"consumed"`
}

type consumeRequest struct {
	UserID uuid.UUID `json:"userId"`
}

// Client of an external week registry
type Client struct {
	Addr string

	client *http.Client
	logger logger.Logger
}

func NewClient(addr string, l logger.Logger) *Client {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		Addr:   strings.TrimRight(addr, "/"),
		client: &http.Client{},
		logger: l,
	}
}

func (c *Client) weekURL(weekID string) string {
	return c.Addr + "/api/weeks/" + url.PathEscape(weekID)
}

func (c *Client) IsConsumed(ctx context.Context, weekID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.weekURL(weekID), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, c.transportError(ctx, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		var w weekState
		if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
			c.logger.Warn("Failed to decode week", "error", err, "week_id", weekID)
			return false, newError(CodeUnknown, 0, fmt.Errorf("failed to decode response: %w", err))
		}
		c.logger.Debug("Week registry response", "week_id", w.ID, "consumed", w.Consumed)
		return w.Consumed, nil
	case http.StatusNotFound:
		return false, apperrors.ErrWeekNotFound
	default:
		return false, c.unexpected(resp, weekID)
	}
}

func (c *Client) MarkConsumed(ctx context.Context, weekID string, userID uuid.UUID) error {
	body, err := json.Marshal(consumeRequest{UserID: userID})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.weekURL(weekID)+"/consume", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return apperrors.ErrWeekNotFound
	case http.StatusForbidden:
		return apperrors.ErrWeekNotOwned
	case http.StatusConflict:
		return apperrors.ErrWeekAlreadyConsumed
	default:
		return c.unexpected(resp, weekID)
	}
}

// Deadline errors are kept as is, the caller turns them into a coordination timeout
func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("week registry request aborted: %w", ctx.Err())
	}
	return newError(CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
}

func (c *Client) unexpected(resp *http.Response, weekID string) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		retryAfter := defaultRetryAfter
		if seconds, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil {
			retryAfter = time.Duration(seconds) * time.Second
		}
		c.logger.Warn("Week registry throttled", "retry_after", retryAfter, "week_id", weekID)
		return newError(CodeRetryAfter, retryAfter, fmt.Errorf("retry after %s", retryAfter))
	default:
		c.logger.Warn("Week registry failed", "status_code", resp.StatusCode, "week_id", weekID)
		return newError(CodeUnknown, 0, fmt.Errorf("unexpected status code %d for week %s", resp.StatusCode, weekID))
	}
}
