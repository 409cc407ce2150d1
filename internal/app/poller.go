package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/five82/flowreader/internal/state"
)

const (
	defaultResyncInterval = 5 * time.Minute
	retryBase             = 2 * time.Second
	maxBackoff            = 30 * time.Second
)

// Resyncer reloads server-side counters and reports whether anything moved.
type Resyncer interface {
	Resync(ctx context.Context) (bool, error)
}

// StartPoller launches a background goroutine that resynchronizes at a fixed
// cadence, retrying sooner with exponential backoff after failures. A value on
// wake runs a pass right away. It returns a channel closed when the goroutine
// exits.
func StartPoller(ctx context.Context, store *state.Store, r Resyncer, interval time.Duration, wake <-chan struct{}, logger *zap.Logger) <-chan struct{} {
	if interval <= 0 {
		interval = defaultResyncInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("poller")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			wait := interval
			if failures := resync(ctx, store, r, logger); failures > 0 {
				wait = min(calculateBackoff(failures, retryBase), interval)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-wake:
				timer.Stop()
				logger.Debug("stream reopened, resyncing early")
			case <-timer.C:
			}
		}
	}()
	return done
}

// resync runs one pass and returns the consecutive failure count.
func resync(ctx context.Context, store *state.Store, r Resyncer, logger *zap.Logger) int {
	changed, err := r.Resync(ctx)
	if ctx.Err() != nil {
		return 0
	}
	store.RecordResync(err)
	snap := store.Snapshot()
	if err != nil {
		logger.Warn("resync failed",
			zap.Int("consecutive_failures", snap.ConsecutiveFailures),
			zap.Error(err))
		return snap.ConsecutiveFailures
	}
	if changed {
		logger.Debug("resync found server-side changes")
	}
	return 0
}

// calculateBackoff doubles base for every failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	backoff := base
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}
