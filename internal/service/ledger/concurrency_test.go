package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/logger"
	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/ratetable"
	"github.com/nkiryanov/creditledger/internal/repository"
	"github.com/nkiryanov/creditledger/internal/repository/postgres"
	"github.com/nkiryanov/creditledger/internal/testutil"
)

// Run fn concurrently n times, all goroutines start together
func race(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}()
	}
	close(start)
	wg.Wait()

	return errs
}

func TestLedgerService_Concurrency(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Committed data: every test uses its own users
	storage := postgres.NewStorage(pg.Pool)
	f := fixture{
		svc:     NewService(storage, testRates()),
		storage: storage,
	}

	t.Run("no double spend", func(t *testing.T) {
		userID := uuid.New()
		f.deposit(t, userID, ratetable.SeasonBlue) // 100

		errs := race(2, func(int) error {
			_, err := f.spend(userID, "60")
			return err
		})

		var ok, insufficient int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errorsIsInsufficient(err):
				insufficient++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, ok, "exactly one spend must succeed")
		require.Equal(t, 1, insufficient, "the other one must be rejected")
		requireDecimal(t, "40", f.wallet(t, userID).Balance)
		require.NoError(t, f.svc.Reconcile(t.Context(), userID))
	})

	t.Run("no double refund", func(t *testing.T) {
		userID := uuid.New()
		f.deposit(t, userID, ratetable.SeasonBlue)
		spend, err := f.spend(userID, "60")
		require.NoError(t, err)

		errs := race(5, func(int) error {
			_, err := f.svc.RefundCredits(context.Background(), RefundParams{UserID: userID, OriginalTransactionID: spend.Transaction.ID})
			return err
		})

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrAlreadyRefunded)
		}
		require.Equal(t, 1, ok, "exactly one refund must succeed")
		requireDecimal(t, "100", f.wallet(t, userID).Balance)
		require.NoError(t, f.svc.Reconcile(t.Context(), userID))
	})

	t.Run("same idempotency key applied once", func(t *testing.T) {
		userID := uuid.New()
		f.deposit(t, userID, ratetable.SeasonBlue)
		params := SpendParams{UserID: userID, Amount: dec("10"), ReferenceType: models.ReferenceBooking, ReferenceID: "B-1", IdempotencyKey: "retry-me"}

		results := make([]Result, 4)
		errs := race(4, func(i int) error {
			var err error
			results[i], err = f.svc.SpendCredits(context.Background(), params)
			return err
		})

		for i, err := range errs {
			require.NoError(t, err)
			require.Equal(t, results[0].Transaction.ID, results[i].Transaction.ID)
		}
		requireDecimal(t, "90", f.wallet(t, userID).Balance)
	})

	t.Run("users do not block each other", func(t *testing.T) {
		users := make([]uuid.UUID, 8)
		for i := range users {
			users[i] = uuid.New()
			f.deposit(t, users[i], ratetable.SeasonBlue)
		}

		errs := race(len(users), func(i int) error {
			_, err := f.spend(users[i], "100")
			return err
		})

		for i, err := range errs {
			require.NoError(t, err)
			require.True(t, f.wallet(t, users[i]).Balance.IsZero())
		}
	})
}

func errorsIsInsufficient(err error) bool {
	var insufficient *apperrors.InsufficientCreditsError
	return errors.As(err, &insufficient)
}

// slowRegistry answers only when the caller gives up
type slowRegistry struct{}

func (slowRegistry) IsConsumed(context.Context, string) (bool, error) {
	return false, nil
}

func (slowRegistry) MarkConsumed(ctx context.Context, _ string, _ uuid.UUID) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestLedgerService_CollaboratorTimeout(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		svc := NewService(storage, testRates(),
			WithWeekRegistry(slowRegistry{}),
			WithCollaboratorTimeout(50*time.Millisecond),
		)
		userID := uuid.New()

		_, err := svc.DepositWeek(t.Context(), DepositParams{UserID: userID, WeekID: "W-ext-1", Season: "BLUE", LocationMultiplier: one, RoomTypeMultiplier: one})

		require.ErrorIs(t, err, apperrors.ErrCoordinationTimeout)
		require.True(t, apperrors.Retryable(err))

		w, err := svc.GetWallet(t.Context(), userID)
		require.NoError(t, err)
		require.True(t, w.Balance.IsZero(), "whole unit must be rolled back")
		require.True(t, w.TotalEarned.IsZero())
	})
}

// driftingRegistry accepts every week and moves the wallet version while the deposit is in flight
type driftingRegistry struct {
	storage repository.Storage
	marked  []string
}

func (r *driftingRegistry) IsConsumed(context.Context, string) (bool, error) {
	return false, nil
}

func (r *driftingRegistry) MarkConsumed(ctx context.Context, weekID string, userID uuid.UUID) error {
	c, err := r.storage.Wallet().Get(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := r.storage.Wallet().Save(ctx, c); err != nil {
		return err
	}
	r.marked = append(r.marked, weekID)
	return nil
}

type alertLogger struct {
	logger.Logger
	mu     sync.Mutex
	alerts map[string][]any
}

func (l *alertLogger) Alert(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts[msg] = args
}

func TestLedgerService_RegistryMarkedThenRolledBack(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		registry := &driftingRegistry{storage: storage}
		l := &alertLogger{Logger: logger.NewNoOpLogger(), alerts: map[string][]any{}}
		svc := NewService(storage, testRates(), WithWeekRegistry(registry), WithLogger(l))
		userID := uuid.New()

		_, err := svc.DepositWeek(t.Context(), DepositParams{UserID: userID, WeekID: "W-ext-2", Season: "BLUE", LocationMultiplier: one, RoomTypeMultiplier: one})

		require.ErrorIs(t, err, apperrors.ErrInvariantViolation)
		require.Equal(t, []string{"W-ext-2"}, registry.marked, "registry saw the mark")

		args, ok := l.alerts["Week consumed in registry but deposit rolled back"]
		require.True(t, ok, "partial deposit must raise an alert, got %v", l.alerts)
		require.Equal(t, []any{"week_id", "W-ext-2", "user_id", userID, "error", err}, args)

		w, err := svc.GetWallet(t.Context(), userID)
		require.NoError(t, err)
		require.True(t, w.Balance.IsZero(), "deposit rolled back")
	})
}
