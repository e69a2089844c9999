package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueDepther is satisfied by *queue.Broker. Readiness reports a queue as
// down if its backlog exceeds a fixed threshold, surfacing a stalled worker
// pool before its queue falls arbitrarily far behind.
type QueueDepther interface {
	Depth(ctx context.Context, queueName string) (int, error)
}

const queueBacklogThreshold = 5000

// CheckResult represents the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker verifies that all dependencies are reachable.
type Checker struct {
	db     Pinger
	queue  QueueDepther
	queues []string
	logger *slog.Logger
	gauge  *prometheus.GaugeVec
}

// NewChecker creates a health checker and registers its Prometheus gauge.
// queue and queues may be nil/empty to skip queue-backlog checks entirely.
func NewChecker(db Pinger, queue QueueDepther, queues []string, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "transcriptpipeline",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		db:     db,
		queue:  queue,
		queues: queues,
		logger: logger.With("component", "health"),
		gauge:  gauge,
	}
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every dependency and reports per-check status.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult),
	}

	if err := c.db.Ping(checkCtx); err != nil {
		c.logger.Warn("postgres health check failed", "error", err)
		result.Status = "down"
		result.Checks["postgres"] = CheckResult{Status: "down", Error: err.Error()}
		c.gauge.WithLabelValues("postgres").Set(0)
	} else {
		result.Checks["postgres"] = CheckResult{Status: "up"}
		c.gauge.WithLabelValues("postgres").Set(1)
	}

	if c.queue != nil {
		for _, name := range c.queues {
			c.checkQueueDepth(checkCtx, &result, name)
		}
	}

	return result
}

func (c *Checker) checkQueueDepth(ctx context.Context, result *HealthResult, name string) {
	dependency := "queue:" + name
	depth, err := c.queue.Depth(ctx, name)
	if err != nil {
		c.logger.Warn("queue depth health check failed", "queue", name, "error", err)
		result.Status = "down"
		result.Checks[dependency] = CheckResult{Status: "down", Error: err.Error()}
		c.gauge.WithLabelValues(dependency).Set(0)
		return
	}
	if depth > queueBacklogThreshold {
		result.Status = "down"
		result.Checks[dependency] = CheckResult{Status: "down", Error: fmt.Sprintf("backlog %d exceeds threshold", depth)}
		c.gauge.WithLabelValues(dependency).Set(0)
		return
	}
	result.Checks[dependency] = CheckResult{Status: "up"}
	c.gauge.WithLabelValues(dependency).Set(1)
}
