package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

// StatusToucher refreshes the active connection's last_updated marker.
type StatusToucher interface {
	Touch(ctx context.Context) (bool, error)
}

// Worker periodically touches the active connection so last_updated stays
// fresh while the process holds the channel.
type Worker struct {
	store    StatusToucher
	interval time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If interval is <= 0, it defaults to 30s.
func NewWorker(store StatusToucher, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		store:    store,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run touches on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("heartbeat failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single heartbeat. Returns true if an active connection
// was refreshed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	touched, err := w.store.Touch(ctx)
	if err != nil {
		return false, err
	}
	if touched {
		w.logger.Debug("refreshed connection heartbeat")
	}
	return touched, nil
}
