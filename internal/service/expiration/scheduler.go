// Package expiration runs the periodic sweep that moves past-due deposits to EXPIRED.
package expiration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/creditledger/internal/logger"
	"github.com/nkiryanov/creditledger/internal/models"
	"github.com/nkiryanov/creditledger/internal/service/ledger"
)

const (
	DefaultCountWorkers = 4           // Number of workers expiring deposits
	DefaultInterval     = time.Minute // Interval between sweeps
	DefaultBatchSize    = 500         // Deposits listed per sweep
	lockKey             = "creditledger:expiration-sweep"
	unlockTimeout       = time.Second
)

type ledgerService interface {
	ListDueDeposits(ctx context.Context, limit int) ([]models.CreditTransaction, error)
	ExpireDeposit(ctx context.Context, depositID uuid.UUID) (ledger.ExpireResult, error)
}

// Locker makes sure one replica sweeps at a time. The lock also expires by ttl if the holder dies
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) (bool, error)
}

// Recorder counts forfeited deposits
type Recorder interface {
	SweepExpired()
}

type Scheduler struct {
	consumer *Consumer
	producer *Producer
}

type Config struct {
	Interval     time.Duration
	CountWorkers int
	BatchSize    int

	// Optional
	Locker   Locker
	Recorder Recorder
}

func New(cfg Config, l logger.Logger, service ledgerService) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CountWorkers <= 0 {
		cfg.CountWorkers = DefaultCountWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return &Scheduler{
		consumer: &Consumer{
			countWorkers: cfg.CountWorkers,
			service:      service,
			recorder:     cfg.Recorder,
			logger:       l,
		},
		producer: &Producer{
			interval:  cfg.Interval,
			batchSize: cfg.BatchSize,
			locker:    cfg.Locker,
			service:   service,
			logger:    l,
		},
	}
}

// Run sweeps every interval until ctx is done. The returned channel is closed when everything stopped
func (s *Scheduler) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	dueChan := make(chan uuid.UUID)

	producerStopped := s.producer.Produce(ctx, dueChan)
	consumerStopped := s.consumer.Consume(ctx, dueChan)

	go func() {
		defer close(idleStopped)
		<-producerStopped
		close(dueChan)
		<-consumerStopped
		s.consumer.logger.Debug("Expiration scheduler stopped")
	}()

	return idleStopped
}

// SweepOnce expires every due deposit synchronously and returns how many were expired.
// Used at startup to catch up, ignores the locker.
func (s *Scheduler) SweepOnce(ctx context.Context) (int, error) {
	expired := 0

	for {
		due, err := s.producer.service.ListDueDeposits(ctx, s.producer.batchSize)
		if err != nil {
			return expired, err
		}

		progress := 0
		for _, deposit := range due {
			ok, err := s.consumer.expire(ctx, deposit.ID)
			if err != nil {
				continue
			}
			progress++
			if ok {
				expired++
			}
		}

		// A batch where nothing moved would be listed again forever
		if len(due) < s.producer.batchSize || progress == 0 {
			return expired, nil
		}
	}
}
