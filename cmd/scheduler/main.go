package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/earningsdesk/transcript-pipeline/config"
	"github.com/earningsdesk/transcript-pipeline/internal/analysis"
	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/email"
	"github.com/earningsdesk/transcript-pipeline/internal/fetcher"
	"github.com/earningsdesk/transcript-pipeline/internal/health"
	"github.com/earningsdesk/transcript-pipeline/internal/infrastructure/postgres"
	"github.com/earningsdesk/transcript-pipeline/internal/llm"
	ctxlog "github.com/earningsdesk/transcript-pipeline/internal/log"
	"github.com/earningsdesk/transcript-pipeline/internal/metrics"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	"github.com/earningsdesk/transcript-pipeline/internal/ratelimit"
	"github.com/earningsdesk/transcript-pipeline/internal/research"
	"github.com/earningsdesk/transcript-pipeline/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err == nil {
		err = postgres.Migrate(sqlDB)
		_ = sqlDB.Close()
	}
	if err != nil {
		logger.Error("migrate", "error", err)
		stop()
		pool.Close()
		os.Exit(2)
	}

	equityRepo := postgres.NewEquityRepository(pool)
	groupRepo := postgres.NewGroupRepository(pool)
	scheduleRepo := postgres.NewScheduleRepository(pool)
	transcriptRepo := postgres.NewTranscriptRepository(pool)
	analysisRepo := postgres.NewAnalysisRepository(pool)
	researchRepo := postgres.NewResearchRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)
	queueRepo := postgres.NewQueueRepository(pool)

	broker := queue.NewBroker(queueRepo)

	metrics.Register()
	metrics.WorkerStartTime.Set(float64(time.Now().Unix()))

	trackedQueues := []string{
		domain.QueueTranscriptCheck,
		domain.QueueAnalysisRequest,
		domain.QueueGroupResearchRequest,
	}
	checker := health.NewChecker(pool, broker, trackedQueues, logger, prometheus.DefaultRegisterer)
	go runQueueDepthPoller(ctx, broker, trackedQueues, 15*time.Second, logger)

	// Dispatcher and window advancer own the fetch_schedule_rows table.
	dispatcher := scheduler.NewDispatcher(scheduleRepo, broker, logger, cfg.DispatchInterval(), cfg.DispatchBatchSize)
	go dispatcher.Start(ctx)

	windowAdvancer := scheduler.NewWindowAdvancer(equityRepo, groupRepo, scheduleRepo, logger)
	go runWindowAdvancer(ctx, windowAdvancer, cfg.WindowAdvanceInterval(), logger)

	// Fetcher pool calls the oracle behind a shared rate limiter.
	oracle := fetcher.NewHTTPOracle(cfg.OracleBaseURL)
	bucket := ratelimit.NewBucket(cfg.OracleQPS)
	fetcherPool := fetcher.NewPool(broker, oracle, bucket, equityRepo, groupRepo, scheduleRepo, transcriptRepo,
		logger, cfg.FetcherConcurrency, cfg.FetcherPollInterval())
	go fetcherPool.Start(ctx)

	// Analysis enqueuer turns analysis_request messages into durable jobs;
	// the pool claims and executes those jobs independently.
	provider, truncator := newLLMProvider(cfg, logger)
	store := analysis.NewContentStore(cfg.ContentStoreDir, &http.Client{Timeout: 60 * time.Second})

	enqueuer := analysis.NewEnqueuer(broker, analysisRepo, logger)
	go enqueuer.Start(ctx, cfg.AnalysisEnqueueInterval(), cfg.AnalysisEnqueueBatchSize)

	analysisPool := analysis.NewPool(analysisRepo, transcriptRepo, groupRepo, equityRepo, outboxRepo, broker,
		store, provider, truncator, logger, cfg.AnalysisConcurrency, cfg.AnalysisPollInterval())
	go analysisPool.Start(ctx)

	// Group research coordinator consumes both stages of group_research_request.
	coordinator := research.NewCoordinator(researchRepo, groupRepo, transcriptRepo, analysisRepo, broker,
		provider, logger, cfg.ResearchBatchSize)
	go coordinator.Start(ctx, cfg.ResearchPollInterval())
	go runResearchSweep(ctx, coordinator, cfg.ResearchSweepInterval(), logger)

	// Email worker drains the outbox.
	sender := email.NewSender(cfg.EmailProvider, cfg.ResendAPIKey, cfg.ResendFrom, cfg.SMTPConfig(), logger)
	emailWorker := email.NewWorker(outboxRepo, analysisRepo, transcriptRepo, equityRepo, sender, logger,
		cfg.EmailConcurrency, cfg.EmailPollInterval())
	go emailWorker.Start(ctx)

	// Reapers reclaim leases left behind by crashed consumers, one per
	// durable resource with its own lease semantics.
	staleCutoffs := []struct {
		name string
		r    *queue.Reaper
	}{
		{"queue", queue.NewReaper("queue", queueRepo, logger, cfg.ReaperInterval(), 2*time.Minute)},
		{"fetch_schedule", queue.NewReaper("fetch_schedule", scheduleRepo, logger, cfg.ReaperInterval(), 2*time.Minute)},
		{"analysis_jobs", queue.NewReaper("analysis_jobs", analysis.NewStaleJobAdapter(analysisRepo), logger, cfg.ReaperInterval(), 5*time.Minute)},
		{"outbox", queue.NewReaper("outbox", outboxRepo, logger, cfg.ReaperInterval(), time.Minute)},
		{"research_runs", queue.NewReaper("research_runs", research.NewStaleRunAdapter(researchRepo), logger, cfg.ReaperInterval(), 10*time.Minute)},
	}
	for _, sc := range staleCutoffs {
		go sc.r.Start(ctx)
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	metrics.WorkerShutdownsTotal.Inc()
	logger.Info("scheduler shut down")
}

func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, *llm.Truncator) {
	truncator, err := llm.NewTruncator(cfg.LLMTiktokenEncoding)
	if err != nil {
		log.Fatalf("llm truncator: %v", err)
	}

	switch cfg.LLMProvider {
	case "stub":
		return llm.NewStubProvider(logger), truncator
	default:
		// openai/anthropic providers are wired the same way StubProvider is;
		// only the stub ships in this module, so any other configured
		// provider falls back to it rather than silently no-op-ing.
		logger.Warn("llm provider not built, falling back to stub", "configured", cfg.LLMProvider)
		return llm.NewStubProvider(logger), truncator
	}
}

func runWindowAdvancer(ctx context.Context, w *scheduler.WindowAdvancer, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		if err := w.Run(ctx, time.Now()); err != nil {
			logger.Error("window advancer run", "error", err)
		}
	}
	run()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// runQueueDepthPoller keeps the QueueDepth gauge current for every named
// lane, independent of the HTTP readiness path, so /metrics reflects backlog
// even when nothing has hit /readyz recently.
func runQueueDepthPoller(ctx context.Context, broker *queue.Broker, queues []string, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	poll := func() {
		for _, name := range queues {
			depth, err := broker.Depth(ctx, name)
			if err != nil {
				logger.Error("queue depth poll", "queue", name, "error", err)
				continue
			}
			metrics.QueueDepth.WithLabelValues(name).Set(float64(depth))
		}
	}
	poll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

func runResearchSweep(ctx context.Context, c *research.Coordinator, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx, time.Now())
		}
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
