package expiration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/creditledger/internal/logger"
	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/service/ledger"
)

// fakeLedger keeps due deposits in memory
type fakeLedger struct {
	mu       sync.Mutex
	due      map[uuid.UUID]models.CreditTransaction
	order    []uuid.UUID
	failing  map[uuid.UUID]bool
	expireCt atomic.Int32
}

func newFakeLedger(n int) *fakeLedger {
	f := &fakeLedger{
		due:     make(map[uuid.UUID]models.CreditTransaction),
		failing: make(map[uuid.UUID]bool),
	}
	for range n {
		id := uuid.New()
		f.due[id] = models.CreditTransaction{ID: id, UserID: uuid.New(), Type: models.TransactionDeposit, Status: models.StatusCompleted, Amount: decimal.NewFromInt(10)}
		f.order = append(f.order, id)
	}
	return f
}

func (f *fakeLedger) ListDueDeposits(_ context.Context, limit int) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.CreditTransaction
	for _, id := range f.order {
		if tx, ok := f.due[id]; ok && len(out) < limit {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeLedger) ExpireDeposit(_ context.Context, id uuid.UUID) (ledger.ExpireResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing[id] {
		return ledger.ExpireResult{}, errors.New("db is down")
	}

	tx, ok := f.due[id]
	if !ok {
		return ledger.ExpireResult{}, nil
	}
	delete(f.due, id)
	f.expireCt.Add(1)

	tx.Status = models.StatusExpired
	expire := models.CreditTransaction{ID: uuid.New(), Type: models.TransactionExpire, Amount: tx.Amount}
	return ledger.ExpireResult{Deposit: tx, Expire: &expire, Expired: true}, nil
}

func (f *fakeLedger) left() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.due)
}

type countingRecorder struct {
	n atomic.Int32
}

func (r *countingRecorder) SweepExpired() { r.n.Add(1) }

type fakeLocker struct {
	allow    bool
	calls    atomic.Int32
	unlocked atomic.Int32
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	l.calls.Add(1)
	return l.allow, nil
}

func (l *fakeLocker) Unlock(context.Context, string) (bool, error) {
	l.unlocked.Add(1)
	return true, nil
}

func TestScheduler(t *testing.T) {
	t.Run("SweepOnce expires everything due", func(t *testing.T) {
		svc := newFakeLedger(25)
		recorder := &countingRecorder{}
		s := New(Config{BatchSize: 10, Recorder: recorder}, logger.NewNoOpLogger(), svc)

		expired, err := s.SweepOnce(t.Context())

		require.NoError(t, err)
		require.Equal(t, 25, expired)
		require.Zero(t, svc.left())
		require.Equal(t, int32(25), recorder.n.Load())

		again, err := s.SweepOnce(t.Context())
		require.NoError(t, err)
		require.Zero(t, again, "second sweep is a no-op")
	})

	t.Run("SweepOnce stops on deposits that keep failing", func(t *testing.T) {
		svc := newFakeLedger(3)
		for _, id := range svc.order {
			svc.failing[id] = true
		}
		s := New(Config{BatchSize: 3}, logger.NewNoOpLogger(), svc)

		expired, err := s.SweepOnce(t.Context())

		require.NoError(t, err)
		require.Zero(t, expired)
		require.Equal(t, 3, svc.left())
	})

	t.Run("Run sweeps on every tick", func(t *testing.T) {
		svc := newFakeLedger(12)
		s := New(Config{Interval: 10 * time.Millisecond, CountWorkers: 3, BatchSize: 5}, logger.NewNoOpLogger(), svc)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := s.Run(ctx)

		require.Eventually(t, func() bool { return svc.left() == 0 }, 2*time.Second, 10*time.Millisecond)
		cancel()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("scheduler has to stop when context is done")
		}
		require.Equal(t, int32(12), svc.expireCt.Load(), "every deposit expired exactly once")
	})

	t.Run("Run skips ticks without the lock", func(t *testing.T) {
		svc := newFakeLedger(5)
		locker := &fakeLocker{allow: false}
		s := New(Config{Interval: 10 * time.Millisecond, Locker: locker}, logger.NewNoOpLogger(), svc)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := s.Run(ctx)

		require.Eventually(t, func() bool { return locker.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
		cancel()
		<-stopped

		require.Equal(t, 5, svc.left(), "replica without the lock must not sweep")
		require.Zero(t, locker.unlocked.Load(), "lock never held, nothing to release")
	})

	t.Run("Run releases the lock on stop", func(t *testing.T) {
		svc := newFakeLedger(5)
		locker := &fakeLocker{allow: true}
		s := New(Config{Interval: 10 * time.Millisecond, Locker: locker}, logger.NewNoOpLogger(), svc)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := s.Run(ctx)

		require.Eventually(t, func() bool { return svc.left() == 0 }, 2*time.Second, 5*time.Millisecond)
		cancel()
		<-stopped

		require.Equal(t, int32(1), locker.unlocked.Load(), "held lock is released once on shutdown")
	})
}
