package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/metrics"
	"github.com/earningsdesk/transcript-pipeline/internal/repository"
	"github.com/earningsdesk/transcript-pipeline/internal/retry"
)

const (
	leaseDuration = time.Minute
	maxAttempts   = 8
)

// Worker drains outbox rows and renders/sends each as an email, backing off
// on transient failures and dead-lettering past the attempt cap.
type Worker struct {
	outboxRepo     repository.OutboxRepository
	analysisRepo   repository.AnalysisRepository
	transcriptRepo repository.TranscriptRepository
	equityRepo     repository.EquityRepository
	sender         Sender
	logger         *slog.Logger
	concurrency    int
	pollInterval   time.Duration
}

func NewWorker(
	outboxRepo repository.OutboxRepository,
	analysisRepo repository.AnalysisRepository,
	transcriptRepo repository.TranscriptRepository,
	equityRepo repository.EquityRepository,
	sender Sender,
	logger *slog.Logger,
	concurrency int,
	pollInterval time.Duration,
) *Worker {
	return &Worker{
		outboxRepo:     outboxRepo,
		analysisRepo:   analysisRepo,
		transcriptRepo: transcriptRepo,
		equityRepo:     equityRepo,
		sender:         sender,
		logger:         logger.With("component", "email_worker"),
		concurrency:    concurrency,
		pollInterval:   pollInterval,
	}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("email worker started", "concurrency", w.concurrency)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("email worker shut down")
			return
		case <-ticker.C:
			w.reportBacklog(ctx)
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) reportBacklog(ctx context.Context) {
	n, err := w.outboxRepo.PendingCount(ctx)
	if err != nil {
		w.logger.Error("email worker pending count", "error", err)
		return
	}
	metrics.OutboxBacklog.Set(float64(n))
}

func (w *Worker) processBatch(ctx context.Context) {
	rows, err := w.outboxRepo.Claim(ctx, time.Now().Add(leaseDuration), w.concurrency)
	if err != nil {
		w.logger.Error("email worker claim", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, row := range rows {
		wg.Add(1)
		go func(r *domain.OutboxRow) {
			defer wg.Done()
			w.process(ctx, r)
		}(row)
	}
	wg.Wait()
}

func (w *Worker) process(ctx context.Context, row *domain.OutboxRow) {
	log := w.logger.With("outbox_id", row.ID, "recipient", row.Recipient)

	subject, body, err := w.render(ctx, row)
	if err != nil {
		log.Error("email worker render", "error", err)
		w.fail(ctx, row)
		return
	}

	if err := w.sender.Send(ctx, row.Recipient, subject, body); err != nil {
		log.Error("email worker send", "error", err)
		w.fail(ctx, row)
		return
	}

	if err := w.outboxRepo.MarkSent(ctx, row.ID); err != nil {
		log.Error("email worker mark sent", "error", err)
		return
	}
	metrics.EmailsSentTotal.WithLabelValues("sent").Inc()
}

// render composes the notification body directly from the stored analysis
// fields; no separate templating layer.
func (w *Worker) render(ctx context.Context, row *domain.OutboxRow) (subject, body string, err error) {
	analysis, err := w.analysisRepo.GetAnalysisByID(ctx, row.AnalysisID)
	if err != nil {
		return "", "", fmt.Errorf("load analysis for outbox row: %w", err)
	}
	transcript, err := w.transcriptRepo.GetByID(ctx, analysis.TranscriptID)
	if err != nil {
		return "", "", fmt.Errorf("load transcript for analysis: %w", err)
	}
	equity, err := w.equityRepo.GetByID(ctx, transcript.EquityID)
	if err != nil {
		return "", "", fmt.Errorf("load equity for transcript: %w", err)
	}

	subject = fmt.Sprintf("%s Q%d %d earnings call summary", equity.Symbol, transcript.Quarter, transcript.Year)
	body = fmt.Sprintf("<h2>%s — Q%d %d</h2><p>%s</p>", equity.Symbol, transcript.Quarter, transcript.Year, analysis.OutputText)
	return subject, body, nil
}

func (w *Worker) fail(ctx context.Context, row *domain.OutboxRow) {
	attempts := row.Attempts + 1
	if attempts >= maxAttempts {
		_ = w.outboxRepo.MarkFailed(ctx, row.ID, nil, true)
		metrics.EmailsSentTotal.WithLabelValues("dead").Inc()
		return
	}
	delay := retry.NextDelay(attempts, 60*time.Second, 6*time.Hour)
	retryAt := time.Now().Add(delay)
	_ = w.outboxRepo.MarkFailed(ctx, row.ID, &retryAt, false)
	metrics.EmailsSentTotal.WithLabelValues("retried").Inc()
}
