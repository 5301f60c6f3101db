package audit

import (
	"context"
	"sync"
	"time"
)

// retentionInterval is how often RunRetention prunes.
const retentionInterval = 24 * time.Hour

// Pruner deletes audit entries older than a given age. *SQLiteRepository
// implements it.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RunRetention prunes entries older than keep once at start and then every
// interval until ctx is cancelled. A non-positive keep disables pruning and
// returns at once; a non-positive interval means daily.
func RunRetention(ctx context.Context, p Pruner, keep, interval time.Duration, logger Logger) {
	if keep <= 0 {
		return
	}
	if interval <= 0 {
		interval = retentionInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}

	prune := func() {
		n, err := p.Prune(ctx, keep)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("audit retention failed", "error", err)
		case n > 0:
			logger.Info("audit entries pruned", "count", n, "older_than", keep.String())
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// StartRetention runs RunRetention in a goroutine. The returned stop
// function cancels it and waits for it to exit, so the caller can close the
// store afterwards. stop may be called more than once.
func StartRetention(ctx context.Context, p Pruner, keep, interval time.Duration, logger Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunRetention(ctx, p, keep, interval, logger)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
