package presence

import (
	"context"
	"time"

	"safetrip/internal/general/logger"
	"safetrip/internal/observability"
)

// Sweeper periodically evicts stale presence records. It belongs to the
// process lifecycle, not to any single connection.
type Sweeper struct {
	registry  *Registry
	logger    *logger.Logger
	interval  time.Duration
	threshold time.Duration
}

// NewSweeper wires a sweeper to the registry.
func NewSweeper(registry *Registry, log *logger.Logger, interval, threshold time.Duration) *Sweeper {
	return &Sweeper{
		registry:  registry,
		logger:    log,
		interval:  interval,
		threshold: threshold,
	}
}

// Run blocks until ctx is cancelled, sweeping on each tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "presence_sweeper_stopped", "Presence sweeper stopped", nil)
			return
		case <-ticker.C:
			removed := s.registry.SweepStale(time.Now().UTC(), s.threshold)
			if len(removed) > 0 {
				observability.PresenceEvictions.Add(float64(len(removed)))
				s.logger.Info(ctx, "presence_swept", "Evicted stale presence records", map[string]any{
					"evicted":   len(removed),
					"remaining": s.registry.Count(),
				})
			}
		}
	}
}
