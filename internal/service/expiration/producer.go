package expiration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/creditledger/internal/logger"
)

type Producer struct {
	interval  time.Duration
	batchSize int
	locker    Locker
	service   ledgerService
	logger    logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- uuid.UUID) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting expiration producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		held := false
		defer func() {
			if held {
				p.release()
			}
		}()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				held = p.acquire(ctx)
				if !held {
					continue
				}

				due, err := p.service.ListDueDeposits(ctx, p.batchSize)
				if err != nil {
					p.logger.Error("Failed to list due deposits", "error", err)
					continue
				}
				p.logger.Debug("Producer tick: due deposits listed", "count", len(due))

				for _, deposit := range due {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending deposits")
						return
					case out <- deposit.ID:
					}
				}
			}
		}
	}()

	return idleStopped
}

// acquire the sweep lock for this tick; without a locker every tick sweeps
func (p *Producer) acquire(ctx context.Context) bool {
	if p.locker == nil {
		return true
	}

	// Slightly shorter than the interval so the holder may take the next tick too
	ok, err := p.locker.TryLock(ctx, lockKey, p.interval*9/10)
	switch {
	case err != nil:
		p.logger.Warn("Sweep lock unavailable, skip tick", "error", err)
		return false
	case !ok:
		p.logger.Debug("Sweep lock held by another replica, skip tick")
		return false
	default:
		return true
	}
}

// release the sweep lock on shutdown so another replica may take the next tick
func (p *Producer) release() {
	if p.locker == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()

	if _, err := p.locker.Unlock(ctx, lockKey); err != nil {
		p.logger.Warn("Failed to release sweep lock, it expires by ttl", "error", err)
		return
	}
	p.logger.Debug("Sweep lock released")
}
