// Package analysis consumes analysis jobs, produces a TranscriptAnalysis
// per transcript, and fans out the downstream email and group-research
// notifications.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/classify"
	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/llm"
	"github.com/earningsdesk/transcript-pipeline/internal/metrics"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	"github.com/earningsdesk/transcript-pipeline/internal/repository"
	"github.com/earningsdesk/transcript-pipeline/internal/retry"
)

const (
	leaseDuration  = 5 * time.Minute
	maxAttempts    = 6
	maxInputTokens = 12000
)

type Pool struct {
	repo           repository.AnalysisRepository
	transcriptRepo repository.TranscriptRepository
	groupRepo      repository.GroupRepository
	equityRepo     repository.EquityRepository
	outboxRepo     repository.OutboxRepository
	broker         *queue.Broker
	store          *ContentStore
	provider       llm.Provider
	truncator      *llm.Truncator
	logger         *slog.Logger
	concurrency    int
	pollInterval   time.Duration
}

func NewPool(
	repo repository.AnalysisRepository,
	transcriptRepo repository.TranscriptRepository,
	groupRepo repository.GroupRepository,
	equityRepo repository.EquityRepository,
	outboxRepo repository.OutboxRepository,
	broker *queue.Broker,
	store *ContentStore,
	provider llm.Provider,
	truncator *llm.Truncator,
	logger *slog.Logger,
	concurrency int,
	pollInterval time.Duration,
) *Pool {
	return &Pool{
		repo:           repo,
		transcriptRepo: transcriptRepo,
		groupRepo:      groupRepo,
		equityRepo:     equityRepo,
		outboxRepo:     outboxRepo,
		broker:         broker,
		store:          store,
		provider:       provider,
		truncator:      truncator,
		logger:         logger.With("component", "analysis_pool"),
		concurrency:    concurrency,
		pollInterval:   pollInterval,
	}
}

func (p *Pool) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.logger.Info("analysis pool started", "concurrency", p.concurrency)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("analysis pool shut down")
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *Pool) processBatch(ctx context.Context) {
	jobs, err := p.repo.ClaimJobs(ctx, time.Now().Add(leaseDuration), p.concurrency)
	if err != nil {
		p.logger.Error("analysis pool claim jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(j *domain.AnalysisJob) {
			defer wg.Done()
			p.process(ctx, j)
		}(job)
	}
	wg.Wait()
}

func (p *Pool) process(ctx context.Context, job *domain.AnalysisJob) {
	log := p.logger.With("job_id", job.ID, "transcript_id", job.TranscriptID)

	reserved, err := p.repo.TryReserveTranscriptAnalysis(ctx, job.TranscriptID, job.Force)
	if err != nil {
		log.Error("analysis pool reserve", "error", err)
		p.retry(ctx, job, err)
		return
	}
	if !reserved {
		if job.Force {
			// Another analysis is in flight; come back shortly rather than
			// failing the force request outright.
			p.retry(ctx, job, errors.New("transcript analysis already in flight"))
			return
		}
		// Not forced and already handled by another worker — no-op.
		if err := p.repo.CompleteJob(ctx, job.ID); err != nil {
			log.Error("analysis pool complete no-op job", "error", err)
		} else {
			metrics.AnalysisJobsTotal.WithLabelValues("skipped").Inc()
		}
		return
	}

	transcript, err := p.transcriptRepo.GetByID(ctx, job.TranscriptID)
	if err != nil {
		p.failPermanent(ctx, log, job, transcript, err)
		return
	}

	text, contentPath, err := p.store.Fetch(ctx, transcript.ID, transcript.SourceURL, transcript.ContentPath)
	if err != nil {
		p.retry(ctx, job, classify.AsTransient(err))
		return
	}
	if contentPath != transcript.ContentPath {
		if err := p.transcriptRepo.SetContentPath(ctx, transcript.ID, contentPath); err != nil {
			log.Error("analysis pool set content path", "error", err)
		}
	}

	if p.truncator != nil {
		if truncated, did := p.truncator.Truncate(text, maxInputTokens); did {
			text = truncated
		}
	}

	prompt, err := resolvePrompt(ctx, p.groupRepo, transcript.EquityID)
	if err != nil {
		p.retry(ctx, job, classify.AsTransient(err))
		return
	}

	generateStart := time.Now()
	result, err := p.provider.Generate(ctx, prompt, text, llm.Options{MaxOutputTokens: 2048, Temperature: 0.2})
	if err != nil {
		metrics.AnalysisDuration.WithLabelValues("error").Observe(time.Since(generateStart).Seconds())
		p.retry(ctx, job, classify.AsTransient(err))
		return
	}
	metrics.AnalysisDuration.WithLabelValues("success").Observe(time.Since(generateStart).Seconds())
	metrics.AnalysisTokensTotal.WithLabelValues("in").Add(float64(result.TokensIn))
	metrics.AnalysisTokensTotal.WithLabelValues("out").Add(float64(result.TokensOut))
	metrics.AnalysisCostTotal.Add(result.Cost)

	analysis, err := p.repo.SaveAnalysis(ctx, &domain.TranscriptAnalysis{
		TranscriptID:   transcript.ID,
		PromptSnapshot: prompt,
		OutputText:     result.Text,
		ModelRef: domain.ModelRef{
			Provider: result.ModelRef.Provider,
			ModelID:  result.ModelRef.ModelID,
			Revision: result.ModelRef.Revision,
		},
		TokensIn:  result.TokensIn,
		TokensOut: result.TokensOut,
		Cost:      result.Cost,
	})
	if err != nil {
		p.retry(ctx, job, err)
		return
	}

	if err := p.transcriptRepo.SetAnalysisStatus(ctx, transcript.ID, domain.AnalysisStatusDone, nil); err != nil {
		log.Error("analysis pool set analysis status done", "error", err)
	}

	p.notify(ctx, log, transcript, analysis)

	if err := p.repo.CompleteJob(ctx, job.ID); err != nil {
		log.Error("analysis pool complete job", "error", err)
	} else {
		metrics.AnalysisJobsTotal.WithLabelValues("done").Inc()
	}
}

// notify fans out the two downstream effects of a completed analysis: an
// outbox row per active recipient when the equity is watchlisted, and a
// group_research_request when the equity belongs to any active group.
func (p *Pool) notify(ctx context.Context, log *slog.Logger, transcript *domain.Transcript, analysis *domain.TranscriptAnalysis) {
	watchlist, err := p.equityRepo.ListWatchlist(ctx)
	if err != nil {
		log.Error("analysis pool list watchlist", "error", err)
	} else {
		watchlisted := false
		for _, w := range watchlist {
			if w.EquityID == transcript.EquityID {
				watchlisted = true
				break
			}
		}
		if watchlisted {
			recipients, err := p.outboxRepo.ListRecipients(ctx)
			if err != nil {
				log.Error("analysis pool list recipients", "error", err)
			} else {
				addrs := make([]string, 0, len(recipients))
				for _, r := range recipients {
					if r.Active {
						addrs = append(addrs, r.Email)
					}
				}
				if len(addrs) > 0 {
					if _, err := p.outboxRepo.Enqueue(ctx, analysis.ID, addrs, time.Now()); err != nil {
						log.Error("analysis pool enqueue outbox rows", "error", err)
					}
				}
			}
		}
	}

	groups, err := p.groupRepo.ListGroupsForEquity(ctx, transcript.EquityID)
	if err != nil {
		log.Error("analysis pool list groups for equity", "error", err)
		return
	}
	if len(groups) == 0 {
		return
	}
	payload := domain.GroupResearchRequestPayload{
		EquityID: transcript.EquityID,
		Quarter:  transcript.Quarter,
		Year:     transcript.Year,
	}
	if err := p.broker.Publish(ctx, domain.QueueGroupResearchRequest, payload); err != nil {
		log.Error("analysis pool publish group_research_request", "error", err)
	}
}

// retry applies the attempt-capped exponential backoff to a failed job. A
// *classify.Classified wrapping classify.Permanent or classify.Poison skips
// straight to a dead-letter fail since retrying would just repeat the same
// outcome.
func (p *Pool) retry(ctx context.Context, job *domain.AnalysisJob, err error) {
	var c *classify.Classified
	if errors.As(err, &c) && c.Outcome != classify.Transient {
		_ = p.repo.FailJob(ctx, job.ID, nil, err.Error())
		metrics.AnalysisJobsTotal.WithLabelValues("failed").Inc()
		return
	}

	attempts := job.Attempts + 1
	if attempts >= maxAttempts {
		_ = p.repo.FailJob(ctx, job.ID, nil, err.Error())
		metrics.AnalysisJobsTotal.WithLabelValues("failed").Inc()
		return
	}
	delay := retry.NextDelay(attempts, 30*time.Second, 30*time.Minute)
	retryAt := time.Now().Add(delay)
	_ = p.repo.FailJob(ctx, job.ID, &retryAt, err.Error())
	metrics.AnalysisJobsTotal.WithLabelValues("retried").Inc()
}

func (p *Pool) failPermanent(ctx context.Context, log *slog.Logger, job *domain.AnalysisJob, transcript *domain.Transcript, err error) {
	log.Error("analysis pool permanent failure", "error", err)
	if transcript != nil {
		msg := err.Error()
		if setErr := p.transcriptRepo.SetAnalysisStatus(ctx, transcript.ID, domain.AnalysisStatusError, &msg); setErr != nil {
			log.Error("analysis pool set analysis status error", "error", setErr)
		}
	}
	_ = p.repo.FailJob(ctx, job.ID, nil, err.Error())
	metrics.AnalysisJobsTotal.WithLabelValues("failed").Inc()
}
