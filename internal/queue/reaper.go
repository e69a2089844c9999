package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/metrics"
)

// Reaper sweeps leases left behind by a crashed consumer so the message
// becomes claimable again.
type Reaper struct {
	repo interface {
		ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
	}
	name         string
	logger       *slog.Logger
	interval     time.Duration
	leaseTimeout time.Duration
}

func NewReaper(name string, repo interface {
	ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
}, logger *slog.Logger, interval, leaseTimeout time.Duration) *Reaper {
	return &Reaper{
		repo:         repo,
		name:         name,
		logger:       logger.With("component", "queue_reaper", "repo", name),
		interval:     interval,
		leaseTimeout: leaseTimeout,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("queue reaper started", "interval", r.interval, "lease_timeout", r.leaseTimeout)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("queue reaper shut down")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.leaseTimeout)
	released, err := r.repo.ReleaseStale(ctx, cutoff, 500)
	if err != nil {
		r.logger.Error("queue reaper sweep", "error", err)
		return
	}
	if released > 0 {
		r.logger.Info("queue reaper released stale leases", "count", released)
	}
	metrics.QueueReaperReleasedTotal.WithLabelValues(r.name).Add(float64(released))
}
