package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/earningsdesk/transcript-pipeline/config"
	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/email"
	"github.com/earningsdesk/transcript-pipeline/internal/health"
	"github.com/earningsdesk/transcript-pipeline/internal/infrastructure/postgres"
	ctxlog "github.com/earningsdesk/transcript-pipeline/internal/log"
	"github.com/earningsdesk/transcript-pipeline/internal/metrics"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	httptransport "github.com/earningsdesk/transcript-pipeline/internal/transport/http"
	"github.com/earningsdesk/transcript-pipeline/internal/transport/http/handler"
	"github.com/earningsdesk/transcript-pipeline/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	// Auth
	userRepo := postgres.NewUserRepository(pool)
	emailSender := email.NewSender(cfg.EmailProvider, cfg.ResendAPIKey, cfg.ResendFrom, cfg.SMTPConfig(), logger)
	authUsecase := usecase.NewAuthUsecase(userRepo, emailSender, []byte(cfg.JWTSecret), cfg.MagicLinkBaseURL)
	authHandler := handler.NewAuthHandler(authUsecase, logger)

	// Domain admin surface
	equityRepo := postgres.NewEquityRepository(pool)
	groupRepo := postgres.NewGroupRepository(pool)
	scheduleRepo := postgres.NewScheduleRepository(pool)
	transcriptRepo := postgres.NewTranscriptRepository(pool)
	queueRepo := postgres.NewQueueRepository(pool)
	broker := queue.NewBroker(queueRepo)

	equityHandler := handler.NewEquityHandler(usecase.NewEquityUsecase(equityRepo), logger)
	groupHandler := handler.NewGroupHandler(usecase.NewGroupUsecase(groupRepo), logger)
	scheduleHandler := handler.NewScheduleHandler(usecase.NewScheduleUsecase(scheduleRepo), logger)
	forceHandler := handler.NewForceHandler(usecase.NewForceUsecase(transcriptRepo, broker), logger)

	metrics.Register()
	metrics.WorkerStartTime.Set(float64(time.Now().Unix()))
	checker := health.NewChecker(pool, broker, []string{
		domain.QueueTranscriptCheck,
		domain.QueueAnalysisRequest,
		domain.QueueGroupResearchRequest,
	}, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr: ":" + cfg.Port,
		Handler: httptransport.NewRouter(
			logger,
			authHandler,
			equityHandler,
			groupHandler,
			scheduleHandler,
			forceHandler,
			[]byte(cfg.JWTSecret),
		),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	metrics.WorkerShutdownsTotal.Inc()
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
