package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweep purges conversations untouched for longer than ttl.
func Sweep(ctx context.Context, convs ConversationStore, ttl time.Duration, now time.Time, logger *zap.Logger) (int64, error) {
	n, err := convs.PurgeExpired(ctx, now.Add(-ttl))
	if err != nil {
		logger.Error("conversation sweep failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		logger.Info("purged expired conversations", zap.Int64("count", n))
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, convs ConversationStore, interval, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			Sweep(ctx, convs, ttl, now, logger)
		}
	}
}
