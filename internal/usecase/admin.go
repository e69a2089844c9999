package usecase

import (
	"context"
	"fmt"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	"github.com/earningsdesk/transcript-pipeline/internal/repository"
	"github.com/earningsdesk/transcript-pipeline/internal/requestid"
)

// EquityUsecase covers the admin surface's equity and watchlist operations.
type EquityUsecase struct {
	equities repository.EquityRepository
}

func NewEquityUsecase(equities repository.EquityRepository) *EquityUsecase {
	return &EquityUsecase{equities: equities}
}

func (u *EquityUsecase) Create(ctx context.Context, e *domain.Equity) (*domain.Equity, error) {
	created, err := u.equities.Create(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("create equity: %w", err)
	}
	return created, nil
}

func (u *EquityUsecase) List(ctx context.Context, limit, offset int) ([]*domain.Equity, error) {
	return u.equities.List(ctx, limit, offset)
}

func (u *EquityUsecase) AddToWatchlist(ctx context.Context, equityID string) error {
	return u.equities.AddToWatchlist(ctx, equityID)
}

func (u *EquityUsecase) RemoveFromWatchlist(ctx context.Context, equityID string) error {
	return u.equities.RemoveFromWatchlist(ctx, equityID)
}

func (u *EquityUsecase) ListWatchlist(ctx context.Context) ([]*domain.WatchlistItem, error) {
	return u.equities.ListWatchlist(ctx)
}

// GroupUsecase covers the admin surface's group and membership operations.
type GroupUsecase struct {
	groups repository.GroupRepository
}

func NewGroupUsecase(groups repository.GroupRepository) *GroupUsecase {
	return &GroupUsecase{groups: groups}
}

func (u *GroupUsecase) Create(ctx context.Context, g *domain.Group) (*domain.Group, error) {
	created, err := u.groups.Create(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return created, nil
}

func (u *GroupUsecase) List(ctx context.Context) ([]*domain.Group, error) {
	return u.groups.List(ctx)
}

func (u *GroupUsecase) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	return u.groups.GetByID(ctx, id)
}

func (u *GroupUsecase) SetActive(ctx context.Context, id string, active bool) error {
	return u.groups.SetActive(ctx, id, active)
}

func (u *GroupUsecase) AddMember(ctx context.Context, groupID, equityID string) error {
	return u.groups.AddMember(ctx, groupID, equityID)
}

func (u *GroupUsecase) RemoveMember(ctx context.Context, groupID, equityID string) error {
	return u.groups.RemoveMember(ctx, groupID, equityID)
}

func (u *GroupUsecase) ListMembers(ctx context.Context, groupID string) ([]*domain.GroupMembership, error) {
	return u.groups.ListMembers(ctx, groupID)
}

// ScheduleUsecase exposes the fetch schedule for admin inspection.
type ScheduleUsecase struct {
	schedule repository.ScheduleRepository
}

func NewScheduleUsecase(schedule repository.ScheduleRepository) *ScheduleUsecase {
	return &ScheduleUsecase{schedule: schedule}
}

func (u *ScheduleUsecase) GetByEquityQuarter(ctx context.Context, equityID string, quarter, year int) (*domain.FetchScheduleRow, error) {
	return u.schedule.GetByEquityQuarter(ctx, equityID, quarter, year)
}

// ForceUsecase lets an operator jump the queue for one transcript's
// analysis or one group's research run, bypassing the fan-in/cadence
// machinery that normally gates them.
type ForceUsecase struct {
	transcripts repository.TranscriptRepository
	broker      *queue.Broker
}

func NewForceUsecase(transcripts repository.TranscriptRepository, broker *queue.Broker) *ForceUsecase {
	return &ForceUsecase{transcripts: transcripts, broker: broker}
}

// Analyze publishes an analysis_request message for a transcript that has
// already been fetched, forcing re-analysis even if one already completed.
func (u *ForceUsecase) Analyze(ctx context.Context, transcriptID string) error {
	t, err := u.transcripts.GetByID(ctx, transcriptID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	if t.Status != domain.TranscriptAvailable {
		return domain.ErrTranscriptNotAvailable
	}
	payload := domain.AnalysisRequestPayload{
		TranscriptID: t.ID,
		SourceURL:    t.SourceURL,
		Force:        true,
		ForceNonce:   requestid.New(),
	}
	if err := u.broker.Publish(ctx, domain.QueueAnalysisRequest, payload); err != nil {
		return fmt.Errorf("publish analysis request: %w", err)
	}
	return nil
}

// Research publishes a stage-2 group_research_request message directly,
// skipping the fan-in readiness check.
func (u *ForceUsecase) Research(ctx context.Context, groupID string, quarter, year int) error {
	payload := domain.GroupResearchRequestPayload{
		GroupID: groupID,
		Quarter: quarter,
		Year:    year,
		Force:   true,
	}
	if err := u.broker.Publish(ctx, domain.QueueGroupResearchRequest, payload); err != nil {
		return fmt.Errorf("publish group research request: %w", err)
	}
	return nil
}
