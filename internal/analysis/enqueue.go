package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/idempotency"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	"github.com/earningsdesk/transcript-pipeline/internal/repository"
)

// Enqueuer drains the analysis_request queue and turns each message into a
// durable AnalysisJob row, deduplicated by idempotency key. Splitting
// "accept the request" from "do the work" lets CreateJob's unique
// constraint absorb duplicate publishes (a retried Fetcher poll, a repeated
// force-analyze click) without the queue layer needing to know about jobs.
type Enqueuer struct {
	broker   *queue.Broker
	repo     repository.AnalysisRepository
	logger   *slog.Logger
	leaseFor time.Duration
}

func NewEnqueuer(broker *queue.Broker, repo repository.AnalysisRepository, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{
		broker:   broker,
		repo:     repo,
		logger:   logger.With("component", "analysis_enqueuer"),
		leaseFor: 30 * time.Second,
	}
}

func (e *Enqueuer) ProcessOnce(ctx context.Context, batchSize int) {
	leases, err := e.broker.Claim(ctx, domain.QueueAnalysisRequest, e.leaseFor, batchSize)
	if err != nil {
		e.logger.Error("analysis enqueuer claim", "error", err)
		return
	}
	for _, lease := range leases {
		var payload domain.AnalysisRequestPayload
		if err := lease.Unmarshal(&payload); err != nil {
			e.logger.Error("analysis enqueuer unmarshal", "error", err)
			_ = lease.Nack(ctx, time.Now(), true)
			continue
		}

		key := idempotency.AnalysisKey(payload.TranscriptID, payload.SourceURL, payload.Force, payload.ForceNonce)
		_, _, err := e.repo.CreateJob(ctx, &domain.AnalysisJob{
			TranscriptID:   payload.TranscriptID,
			Status:         domain.JobPending,
			IdempotencyKey: key,
			Force:          payload.Force,
		})
		if err != nil {
			e.logger.Error("analysis enqueuer create job", "error", err, "transcript_id", payload.TranscriptID)
			_ = lease.Nack(ctx, time.Now().Add(time.Minute), false)
			continue
		}
		_ = lease.Ack(ctx)
	}
}

func (e *Enqueuer) Start(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ProcessOnce(ctx, batchSize)
		}
	}
}
