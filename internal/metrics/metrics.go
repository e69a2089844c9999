package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/earningsdesk/transcript-pipeline/internal/health"
)

var (
	// Queue metrics

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "transcriptpipeline",
		Name:      "queue_depth",
		Help:      "Number of available, due messages per queue.",
	}, []string{"queue"})

	QueueReaperReleasedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "queue_reaper_released_total",
		Help:      "Total stale leases released, by repository.",
	}, []string{"repo"})

	// Scheduler / Fetcher metrics

	ScheduleRowsClaimedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "schedule_rows_claimed_total",
		Help:      "Total fetch_schedule_rows claimed by the dispatcher.",
	}, []string{"priority"})

	FetcherObservationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "fetcher_observations_total",
		Help:      "Total oracle observations, by kind.",
	}, []string{"kind"})

	RateLimiterTokensAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "transcriptpipeline",
		Name:      "ratelimiter_tokens_available",
		Help:      "Current token bucket burst capacity for the oracle client.",
	})

	// Analysis metrics

	AnalysisDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "transcriptpipeline",
		Name:      "analysis_duration_seconds",
		Help:      "Duration of one LLM analysis call.",
		Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"outcome"})

	AnalysisTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "analysis_tokens_total",
		Help:      "Total tokens consumed by completed analyses.",
	}, []string{"direction"})

	AnalysisCostTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "analysis_cost_total",
		Help:      "Cumulative provider cost across completed analyses, in USD.",
	})

	AnalysisJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "analysis_jobs_total",
		Help:      "Total analysis jobs resolved, by outcome.",
	}, []string{"outcome"})

	// Outbox / email metrics

	OutboxBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "transcriptpipeline",
		Name:      "outbox_backlog",
		Help:      "Pending outbox rows awaiting delivery.",
	})

	EmailsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "emails_sent_total",
		Help:      "Total outbox rows resolved, by outcome.",
	}, []string{"outcome"})

	// Group research metrics

	GroupResearchRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "group_research_runs_total",
		Help:      "Total group research runs, by outcome.",
	}, []string{"outcome"})

	// Process lifecycle

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "transcriptpipeline",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when this process started.",
	})

	WorkerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "worker_shutdowns_total",
		Help:      "Number of times this process has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "transcriptpipeline",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriptpipeline",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		QueueDepth,
		QueueReaperReleasedTotal,
		ScheduleRowsClaimedTotal,
		FetcherObservationsTotal,
		RateLimiterTokensAvailable,
		AnalysisDuration,
		AnalysisTokensTotal,
		AnalysisCostTotal,
		AnalysisJobsTotal,
		OutboxBacklog,
		EmailsSentTotal,
		GroupResearchRunsTotal,
		WorkerStartTime,
		WorkerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus liveness/readiness endpoints backed by checker.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})

	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
