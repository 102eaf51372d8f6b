package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/task-notifier/pkg/logger"
)

// Reaper drops presence index entries whose records have expired.
type Reaper interface {
	Reap(ctx context.Context) int
}

type PresenceReaper struct {
	presence Reaper
	interval time.Duration
	logger   *logger.Logger
}

func NewPresenceReaper(presence Reaper, interval time.Duration, log *logger.Logger) *PresenceReaper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PresenceReaper{
		presence: presence,
		interval: interval,
		logger:   log.With("worker", "presence_reaper"),
	}
}

func (w *PresenceReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reap(ctx)
		}
	}
}

func (w *PresenceReaper) reap(ctx context.Context) {
	if n := w.presence.Reap(ctx); n > 0 {
		w.logger.Info("Reaped stale presence entries", "count", n)
	}
}
