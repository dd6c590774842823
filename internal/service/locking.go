package service

import (
	"context"
	"fmt"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/util"

	"go.uber.org/zap"
)

const (
	lockAttempts = 20
	lockBackoff  = 100 * time.Millisecond
)

// orderLocks serializes mutations of one order across instances.
// The database row lock taken inside each transaction stays authoritative;
// when Redis is unavailable the row lock is all that remains.
type orderLocks struct {
	locker Locker
	ttl    time.Duration
	logger *zap.Logger
}

func newOrderLocks(locker Locker, ttl time.Duration) *orderLocks {
	return &orderLocks{locker: locker, ttl: ttl, logger: util.GetLogger()}
}

func (l *orderLocks) withOrder(ctx context.Context, orderID int64, fn func() error) error {
	if l == nil || l.locker == nil {
		return fn()
	}

	key := fmt.Sprintf("order:%d", orderID)
	for attempt := 0; attempt < lockAttempts; attempt++ {
		token, ok, err := l.locker.AcquireLock(ctx, key, l.ttl)
		if err != nil {
			l.logger.Warn("Redis lock unavailable, relying on row lock",
				zap.Int64("order_id", orderID),
				zap.Error(err))
			return fn()
		}
		if ok {
			defer func() {
				if err := l.locker.ReleaseLock(context.Background(), key, token); err != nil {
					l.logger.Warn("Failed to release order lock",
						zap.Int64("order_id", orderID),
						zap.Error(err))
				}
			}()
			return fn()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockBackoff):
		}
	}

	return apperr.Conflict("order %d is being updated by another request, retry later", orderID)
}
