// Package research implements the fan-in Group Research Coordinator: once
// every member of a group has a completed transcript analysis for a
// quarter, it composes one article covering the whole group.
package research

import (
	"context"
	"log/slog"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/llm"
	"github.com/earningsdesk/transcript-pipeline/internal/metrics"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	"github.com/earningsdesk/transcript-pipeline/internal/repository"
	"github.com/earningsdesk/transcript-pipeline/internal/scheduler"
)

const leaseDuration = 30 * time.Second

type Coordinator struct {
	repo           repository.ResearchRepository
	groupRepo      repository.GroupRepository
	transcriptRepo repository.TranscriptRepository
	analysisRepo   repository.AnalysisRepository
	broker         *queue.Broker
	provider       llm.Provider
	logger         *slog.Logger
	batchSize      int
}

func NewCoordinator(
	repo repository.ResearchRepository,
	groupRepo repository.GroupRepository,
	transcriptRepo repository.TranscriptRepository,
	analysisRepo repository.AnalysisRepository,
	broker *queue.Broker,
	provider llm.Provider,
	logger *slog.Logger,
	batchSize int,
) *Coordinator {
	return &Coordinator{
		repo:           repo,
		groupRepo:      groupRepo,
		transcriptRepo: transcriptRepo,
		analysisRepo:   analysisRepo,
		broker:         broker,
		provider:       provider,
		logger:         logger.With("component", "research_coordinator"),
		batchSize:      batchSize,
	}
}

func (c *Coordinator) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("research coordinator started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("research coordinator shut down")
			return
		case <-ticker.C:
			c.processBatch(ctx)
		}
	}
}

func (c *Coordinator) processBatch(ctx context.Context) {
	leases, err := c.broker.Claim(ctx, domain.QueueGroupResearchRequest, leaseDuration, c.batchSize)
	if err != nil {
		c.logger.Error("research coordinator claim", "error", err)
		return
	}
	for _, lease := range leases {
		var payload domain.GroupResearchRequestPayload
		if err := lease.Unmarshal(&payload); err != nil {
			c.logger.Error("research coordinator unmarshal", "error", err)
			_ = lease.Nack(ctx, time.Now(), true)
			continue
		}
		c.handle(ctx, payload, lease)
	}
}

func (c *Coordinator) handle(ctx context.Context, payload domain.GroupResearchRequestPayload, lease *queue.Lease) {
	if payload.GroupID != "" {
		c.dispatch(ctx, payload, lease)
		return
	}
	c.checkFanIn(ctx, payload, lease)
}

// checkFanIn handles a stage-1 message keyed by equity: every active group
// containing the equity is checked for readiness, and a ready group with no
// existing run for the quarter gets one created plus a stage-2 message.
func (c *Coordinator) checkFanIn(ctx context.Context, payload domain.GroupResearchRequestPayload, lease *queue.Lease) {
	log := c.logger.With("equity_id", payload.EquityID, "quarter", payload.Quarter, "year", payload.Year)

	groups, err := c.groupRepo.ListGroupsForEquity(ctx, payload.EquityID)
	if err != nil {
		log.Error("research coordinator list groups for equity", "error", err)
		_ = lease.Nack(ctx, time.Now().Add(time.Minute), false)
		return
	}

	for _, g := range groups {
		ready, err := c.repo.IsReady(ctx, g.ID, payload.Quarter, payload.Year)
		if err != nil {
			log.Error("research coordinator fan-in check", "error", err, "group_id", g.ID)
			continue
		}
		if !ready {
			continue
		}

		run, created, err := c.repo.GetOrCreate(ctx, g.ID, payload.Quarter, payload.Year, g.DeepResearchPrompt)
		if err != nil {
			log.Error("research coordinator get-or-create run", "error", err, "group_id", g.ID)
			continue
		}
		if !created {
			continue
		}

		if err := c.broker.Publish(ctx, domain.QueueGroupResearchRequest, domain.GroupResearchRequestPayload{
			GroupID: g.ID,
			Quarter: payload.Quarter,
			Year:    payload.Year,
		}); err != nil {
			log.Error("research coordinator publish stage-2 request", "error", err, "run_id", run.ID)
		}
	}

	_ = lease.Ack(ctx)
}

// dispatch handles a stage-2 message keyed by group: the actual
// pending->in_progress transition and LLM call happen here.
func (c *Coordinator) dispatch(ctx context.Context, payload domain.GroupResearchRequestPayload, lease *queue.Lease) {
	log := c.logger.With("group_id", payload.GroupID, "quarter", payload.Quarter, "year", payload.Year)

	group, err := c.groupRepo.GetByID(ctx, payload.GroupID)
	if err != nil {
		log.Error("research coordinator load group", "error", err)
		_ = lease.Ack(ctx)
		return
	}

	run, _, err := c.repo.GetOrCreate(ctx, group.ID, payload.Quarter, payload.Year, group.DeepResearchPrompt)
	if err != nil {
		log.Error("research coordinator get-or-create run", "error", err)
		_ = lease.Nack(ctx, time.Now().Add(time.Minute), false)
		return
	}

	reserved, err := c.repo.TryReserve(ctx, run.ID, payload.Force)
	if err != nil {
		log.Error("research coordinator reserve run", "error", err)
		_ = lease.Nack(ctx, time.Now().Add(time.Minute), false)
		return
	}
	if !reserved {
		_ = lease.Ack(ctx)
		return
	}

	members, err := c.groupRepo.ListMembers(ctx, group.ID)
	if err != nil {
		_ = c.repo.Fail(ctx, run.ID, err.Error())
		_ = lease.Ack(ctx)
		return
	}

	input := c.summarizeMembership(ctx, log, members, payload.Quarter, payload.Year)
	result, err := c.provider.Generate(ctx, run.PromptSnapshot, input, llm.Options{MaxOutputTokens: 4096, Temperature: 0.3})
	if err != nil {
		_ = c.repo.Fail(ctx, run.ID, err.Error())
		metrics.GroupResearchRunsTotal.WithLabelValues("failed").Inc()
		_ = lease.Nack(ctx, time.Now().Add(time.Minute), false)
		return
	}

	if err := c.repo.Complete(ctx, run.ID, result.Text, domain.ModelRef{
		Provider: result.ModelRef.Provider,
		ModelID:  result.ModelRef.ModelID,
		Revision: result.ModelRef.Revision,
	}); err != nil {
		log.Error("research coordinator complete run", "error", err)
		metrics.GroupResearchRunsTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.GroupResearchRunsTotal.WithLabelValues("done").Inc()
	}

	_ = lease.Ack(ctx)
}

// Sweep periodically re-checks every active group against the current
// target quarter, independent of the event-driven path, so a group whose
// last member transcript arrived while this coordinator was down still
// gets its article composed.
func (c *Coordinator) Sweep(ctx context.Context, now time.Time) {
	groups, err := c.groupRepo.List(ctx)
	if err != nil {
		c.logger.Error("research coordinator sweep list groups", "error", err)
		return
	}
	quarter, year := scheduler.TargetQuarter(now)

	for _, g := range groups {
		if !g.IsActive {
			continue
		}
		ready, err := c.repo.IsReady(ctx, g.ID, quarter, year)
		if err != nil || !ready {
			continue
		}
		run, created, err := c.repo.GetOrCreate(ctx, g.ID, quarter, year, g.DeepResearchPrompt)
		if err != nil || !created {
			continue
		}
		if err := c.broker.Publish(ctx, domain.QueueGroupResearchRequest, domain.GroupResearchRequestPayload{
			GroupID: g.ID,
			Quarter: quarter,
			Year:    year,
		}); err != nil {
			c.logger.Error("research coordinator sweep publish", "error", err, "run_id", run.ID)
		}
	}
}

// summarizeMembership assembles the deep-research input from each member's
// completed per-equity analysis, so the group prompt works over the same
// text an analyst reading each individual notification would see.
func (c *Coordinator) summarizeMembership(ctx context.Context, log *slog.Logger, members []*domain.GroupMembership, quarter, year int) string {
	input := ""
	for _, m := range members {
		t, err := c.transcriptRepo.GetByEquityQuarter(ctx, m.EquityID, quarter, year)
		if err != nil {
			log.Warn("research coordinator missing transcript for member", "equity_id", m.EquityID, "error", err)
			continue
		}
		a, err := c.analysisRepo.GetAnalysisByTranscript(ctx, t.ID)
		if err != nil {
			log.Warn("research coordinator missing analysis for member", "equity_id", m.EquityID, "error", err)
			continue
		}
		input += "## " + m.EquityID + "\n" + a.OutputText + "\n\n"
	}
	return input
}
