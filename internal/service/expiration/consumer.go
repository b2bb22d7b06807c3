package expiration

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/creditledger/internal/logger"
)

type Consumer struct {
	countWorkers int

	service  ledgerService
	recorder Recorder
	logger   logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan uuid.UUID) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan uuid.UUID) {
	for {
		select {
		case <-ctx.Done():
			return

		case depositID, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}
			_, _ = c.expire(ctx, depositID)
		}
	}
}

// expire one deposit, each deposit is its own db transaction
func (c *Consumer) expire(ctx context.Context, depositID uuid.UUID) (bool, error) {
	res, err := c.service.ExpireDeposit(ctx, depositID)
	if err != nil {
		c.logger.Error("Failed to expire deposit", "error", err, "deposit_id", depositID)
		return false, err
	}
	if !res.Expired {
		return false, nil
	}

	if c.recorder != nil {
		c.recorder.SweepExpired()
	}
	forfeited := "0"
	if res.Expire != nil {
		forfeited = res.Expire.Amount.StringFixed(2)
	}
	c.logger.Info("Deposit expired", "deposit_id", depositID, "user_id", res.Deposit.UserID, "forfeited", forfeited)

	return true, nil
}
