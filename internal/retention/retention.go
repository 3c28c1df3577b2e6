// Package retention purges log entries past their retention window for
// stores without a native TTL.
package retention

import (
	"context"
	"time"

	"guild-dashboard/internal/model"

	"go.uber.org/zap"
)

const DefaultInterval = time.Hour

type Purger interface {
	PurgeLogsBefore(ctx context.Context, t time.Time) (int64, error)
}

type Worker struct {
	logs     Purger
	interval time.Duration
	maxAge   time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func New(logs Purger, interval, maxAge time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAge <= 0 {
		maxAge = model.LogRetention
	}
	return &Worker{
		logs:     logs,
		interval: interval,
		maxAge:   maxAge,
		log:      log.Named("retention"),
		now:      time.Now,
	}
}

// PurgeOnce deletes every entry older than the retention window.
func (w *Worker) PurgeOnce(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.maxAge)
	n, err := w.logs.PurgeLogsBefore(ctx, cutoff)
	if err != nil {
		w.log.Error("log purge failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		w.log.Info("purged expired logs", zap.Int64("deleted", n), zap.Time("before", cutoff))
	}
	return n, nil
}

// Run purges once immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.PurgeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PurgeOnce(ctx)
		}
	}
}
