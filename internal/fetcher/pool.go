// Package fetcher consumes transcript_check messages, calls the oracle, and
// advances both the Transcript record and its FetchScheduleRow.
package fetcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/metrics"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	"github.com/earningsdesk/transcript-pipeline/internal/ratelimit"
	"github.com/earningsdesk/transcript-pipeline/internal/repository"
	"github.com/earningsdesk/transcript-pipeline/internal/scheduler"
)

const leaseDuration = 2 * time.Minute

type Pool struct {
	broker         *queue.Broker
	oracle         Oracle
	bucket         *ratelimit.Bucket
	equityRepo     repository.EquityRepository
	groupRepo      repository.GroupRepository
	scheduleRepo   repository.ScheduleRepository
	transcriptRepo repository.TranscriptRepository
	logger         *slog.Logger
	concurrency    int
	pollInterval   time.Duration
}

func NewPool(
	broker *queue.Broker,
	oracle Oracle,
	bucket *ratelimit.Bucket,
	equityRepo repository.EquityRepository,
	groupRepo repository.GroupRepository,
	scheduleRepo repository.ScheduleRepository,
	transcriptRepo repository.TranscriptRepository,
	logger *slog.Logger,
	concurrency int,
	pollInterval time.Duration,
) *Pool {
	return &Pool{
		broker:         broker,
		oracle:         oracle,
		bucket:         bucket,
		equityRepo:     equityRepo,
		groupRepo:      groupRepo,
		scheduleRepo:   scheduleRepo,
		transcriptRepo: transcriptRepo,
		logger:         logger.With("component", "fetcher_pool"),
		concurrency:    concurrency,
		pollInterval:   pollInterval,
	}
}

func (p *Pool) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.logger.Info("fetcher pool started", "concurrency", p.concurrency)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("fetcher pool shut down")
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *Pool) processBatch(ctx context.Context) {
	leases, err := p.broker.Claim(ctx, domain.QueueTranscriptCheck, leaseDuration, p.concurrency)
	if err != nil {
		p.logger.Error("fetcher pool claim", "error", err)
		return
	}
	if len(leases) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, lease := range leases {
		wg.Add(1)
		go func(l *queue.Lease) {
			defer wg.Done()
			p.process(ctx, l)
		}(lease)
	}
	wg.Wait()
}

func (p *Pool) process(ctx context.Context, lease *queue.Lease) {
	var payload domain.TranscriptCheckPayload
	if err := lease.Unmarshal(&payload); err != nil {
		p.logger.Error("fetcher pool unmarshal payload", "error", err)
		_ = lease.Nack(ctx, time.Now(), true)
		return
	}
	log := p.logger.With("row_id", payload.RowID, "equity_id", payload.EquityID)

	row, err := p.scheduleRepo.GetByEquityQuarter(ctx, payload.EquityID, payload.Quarter, payload.Year)
	if err != nil {
		log.Warn("fetcher pool schedule row missing, acking", "error", err)
		_ = lease.Ack(ctx)
		return
	}

	equity, err := p.equityRepo.GetByID(ctx, payload.EquityID)
	if err != nil {
		log.Error("fetcher pool load equity", "error", err)
		_ = lease.Nack(ctx, time.Now().Add(time.Minute), false)
		return
	}

	if err := p.bucket.Wait(ctx); err != nil {
		_ = lease.Nack(ctx, time.Now().Add(time.Second), false)
		return
	}

	obs := p.oracle.Lookup(ctx, equity, payload.Quarter, payload.Year)
	metrics.FetcherObservationsTotal.WithLabelValues(string(obs.Kind)).Inc()

	switch obs.Kind {
	case ObservationTransientErr:
		if isRateLimited(obs) {
			p.bucket.ReportRateLimited()
		}
		metrics.RateLimiterTokensAvailable.Set(p.bucket.Tokens())
		p.onTransientError(ctx, log, row, lease)
		return
	case ObservationPermanentErr:
		p.bucket.ReportSuccess()
		metrics.RateLimiterTokensAvailable.Set(p.bucket.Tokens())
		p.onPermanentError(ctx, log, row, lease)
		return
	}

	p.bucket.ReportSuccess()
	metrics.RateLimiterTokensAvailable.Set(p.bucket.Tokens())

	switch obs.Kind {
	case ObservationAvailable:
		p.onAvailable(ctx, log, row, obs, lease)
	case ObservationUpcoming:
		p.onUpcoming(ctx, log, row, obs, lease)
	default:
		p.onNone(ctx, log, row, lease)
	}
}

func isRateLimited(obs Observation) bool {
	return obs.Err != nil && obs.Kind == ObservationTransientErr
}

func (p *Pool) onAvailable(ctx context.Context, log *slog.Logger, row *domain.FetchScheduleRow, obs Observation, lease *queue.Lease) {
	t, err := p.transcriptRepo.Upsert(ctx, &domain.Transcript{
		EquityID:  row.EquityID,
		Quarter:   row.Quarter,
		Year:      row.Year,
		SourceURL: obs.SourceURL,
		Status:    domain.TranscriptAvailable,
		EventDate: obs.EventDate,
	}, false)
	if err != nil {
		log.Error("fetcher pool upsert transcript", "error", err)
		_ = lease.Nack(ctx, time.Now().Add(time.Minute), false)
		return
	}

	isNewEvent, err := p.appendEvent(ctx, row, domain.TranscriptAvailable, obs.SourceURL, obs.EventDate)
	if err != nil {
		log.Error("fetcher pool append event", "error", err)
	}

	if isNewEvent {
		eligible, err := p.isEligibleForAnalysis(ctx, row.EquityID, row.Quarter, row.Year)
		if err != nil {
			log.Error("fetcher pool eligibility check", "error", err)
		} else if eligible {
			payload := domain.AnalysisRequestPayload{
				TranscriptID: t.ID,
				SourceURL:    t.SourceURL,
				Force:        false,
			}
			if err := p.broker.Publish(ctx, domain.QueueAnalysisRequest, payload); err != nil {
				log.Error("fetcher pool publish analysis_request", "error", err)
			}
		}
	}

	p.advance(ctx, log, row, domain.TranscriptAvailable, true, lease)
}

func (p *Pool) onUpcoming(ctx context.Context, log *slog.Logger, row *domain.FetchScheduleRow, obs Observation, lease *queue.Lease) {
	if _, err := p.transcriptRepo.Upsert(ctx, &domain.Transcript{
		EquityID:  row.EquityID,
		Quarter:   row.Quarter,
		Year:      row.Year,
		Status:    domain.TranscriptUpcoming,
		EventDate: obs.EventDate,
	}, false); err != nil {
		log.Error("fetcher pool upsert transcript", "error", err)
	}
	if _, err := p.appendEvent(ctx, row, domain.TranscriptUpcoming, "", obs.EventDate); err != nil {
		log.Error("fetcher pool append event", "error", err)
	}
	p.advance(ctx, log, row, domain.TranscriptUpcoming, false, lease)
}

func (p *Pool) onNone(ctx context.Context, log *slog.Logger, row *domain.FetchScheduleRow, lease *queue.Lease) {
	if _, err := p.appendEvent(ctx, row, domain.TranscriptNone, "", nil); err != nil {
		log.Error("fetcher pool append event", "error", err)
	}
	p.advance(ctx, log, row, domain.TranscriptNone, false, lease)
}

func (p *Pool) onTransientError(ctx context.Context, log *slog.Logger, row *domain.FetchScheduleRow, lease *queue.Lease) {
	next := scheduler.NextCheckAt(time.Now(), transientSignal(row))
	if err := p.scheduleRepo.Advance(ctx, row.ID, row.LastStatus, next, false); err != nil {
		log.Error("fetcher pool advance after transient error", "error", err)
	}
	_ = lease.Ack(ctx)
}

func (p *Pool) onPermanentError(ctx context.Context, log *slog.Logger, row *domain.FetchScheduleRow, lease *queue.Lease) {
	if err := p.scheduleRepo.Advance(ctx, row.ID, domain.TranscriptCheckError, time.Now().Add(24*time.Hour), false); err != nil {
		log.Error("fetcher pool advance after permanent error", "error", err)
	}
	_ = lease.Ack(ctx)
}

func (p *Pool) advance(ctx context.Context, log *slog.Logger, row *domain.FetchScheduleRow, status domain.TranscriptStatus, available bool, lease *queue.Lease) {
	next := scheduler.NextCheckAt(time.Now(), scheduler.SignalParams{Status: status})
	if err := p.scheduleRepo.Advance(ctx, row.ID, status, next, available); err != nil {
		log.Error("fetcher pool advance schedule row", "error", err)
		_ = lease.Nack(ctx, time.Now().Add(time.Minute), false)
		return
	}
	_ = lease.Ack(ctx)
}

func (p *Pool) appendEvent(ctx context.Context, row *domain.FetchScheduleRow, status domain.TranscriptStatus, sourceURL string, eventDate *time.Time) (bool, error) {
	return p.transcriptRepo.AppendEvent(ctx, &domain.TranscriptEvent{
		EquityID:  row.EquityID,
		Quarter:   row.Quarter,
		Year:      row.Year,
		Status:    status,
		SourceURL: sourceURL,
		EventDate: eventDate,
		Origin:    domain.EventOriginPoll,
	})
}

// isEligibleForAnalysis implements the rule gating automatic analysis
// requests: the equity must be on the watchlist, or a member of an active
// group whose current target quarter matches the transcript's.
func (p *Pool) isEligibleForAnalysis(ctx context.Context, equityID string, quarter, year int) (bool, error) {
	watchlist, err := p.equityRepo.ListWatchlist(ctx)
	if err != nil {
		return false, err
	}
	for _, w := range watchlist {
		if w.EquityID == equityID {
			return true, nil
		}
	}

	groups, err := p.groupRepo.ListGroupsForEquity(ctx, equityID)
	if err != nil {
		return false, err
	}
	if len(groups) == 0 {
		return false, nil
	}
	return scheduler.IsActiveQuarter(time.Now(), quarter, year), nil
}

func transientSignal(row *domain.FetchScheduleRow) scheduler.SignalParams {
	return scheduler.SignalParams{Status: row.LastStatus, TransientErr: true, Attempts: row.Attempts}
}
