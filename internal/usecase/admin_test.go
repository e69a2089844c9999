package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	"github.com/earningsdesk/transcript-pipeline/internal/repository"
	"github.com/earningsdesk/transcript-pipeline/internal/usecase"
)

// ---- fakes ----

type fakeEquityRepo struct {
	create              func(ctx context.Context, e *domain.Equity) (*domain.Equity, error)
	list                func(ctx context.Context, limit, offset int) ([]*domain.Equity, error)
	addToWatchlist      func(ctx context.Context, equityID string) error
	removeFromWatchlist func(ctx context.Context, equityID string) error
	listWatchlist       func(ctx context.Context) ([]*domain.WatchlistItem, error)
}

func (r *fakeEquityRepo) Create(ctx context.Context, e *domain.Equity) (*domain.Equity, error) {
	return r.create(ctx, e)
}
func (r *fakeEquityRepo) GetByID(_ context.Context, _ string) (*domain.Equity, error) { return nil, nil }
func (r *fakeEquityRepo) GetByIdentifier(_ context.Context, _ string) (*domain.Equity, error) {
	return nil, nil
}
func (r *fakeEquityRepo) List(ctx context.Context, limit, offset int) ([]*domain.Equity, error) {
	return r.list(ctx, limit, offset)
}
func (r *fakeEquityRepo) AddToWatchlist(ctx context.Context, equityID string) error {
	return r.addToWatchlist(ctx, equityID)
}
func (r *fakeEquityRepo) RemoveFromWatchlist(ctx context.Context, equityID string) error {
	return r.removeFromWatchlist(ctx, equityID)
}
func (r *fakeEquityRepo) ListWatchlist(ctx context.Context) ([]*domain.WatchlistItem, error) {
	return r.listWatchlist(ctx)
}

var _ repository.EquityRepository = (*fakeEquityRepo)(nil)

type fakeGroupRepo struct {
	setActive func(ctx context.Context, id string, active bool) error
}

func (r *fakeGroupRepo) Create(_ context.Context, g *domain.Group) (*domain.Group, error) { return g, nil }
func (r *fakeGroupRepo) GetByID(_ context.Context, _ string) (*domain.Group, error)       { return nil, nil }
func (r *fakeGroupRepo) List(_ context.Context) ([]*domain.Group, error)                  { return nil, nil }
func (r *fakeGroupRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.setActive(ctx, id, active)
}
func (r *fakeGroupRepo) AddMember(_ context.Context, _, _ string) error    { return nil }
func (r *fakeGroupRepo) RemoveMember(_ context.Context, _, _ string) error { return nil }
func (r *fakeGroupRepo) ListMembers(_ context.Context, _ string) ([]*domain.GroupMembership, error) {
	return nil, nil
}
func (r *fakeGroupRepo) ListGroupsForEquity(_ context.Context, _ string) ([]*domain.Group, error) {
	return nil, nil
}

var _ repository.GroupRepository = (*fakeGroupRepo)(nil)

type fakeTranscriptRepo struct {
	getByID func(ctx context.Context, id string) (*domain.Transcript, error)
}

func (r *fakeTranscriptRepo) GetByID(ctx context.Context, id string) (*domain.Transcript, error) {
	return r.getByID(ctx, id)
}
func (r *fakeTranscriptRepo) GetByEquityQuarter(_ context.Context, _ string, _, _ int) (*domain.Transcript, error) {
	return nil, nil
}
func (r *fakeTranscriptRepo) Upsert(_ context.Context, t *domain.Transcript, _ bool) (*domain.Transcript, error) {
	return t, nil
}
func (r *fakeTranscriptRepo) AppendEvent(_ context.Context, _ *domain.TranscriptEvent) (bool, error) {
	return true, nil
}
func (r *fakeTranscriptRepo) SetAnalysisStatus(_ context.Context, _ string, _ domain.AnalysisStatus, _ *string) error {
	return nil
}
func (r *fakeTranscriptRepo) SetContentPath(_ context.Context, _ string, _ string) error { return nil }

var _ repository.TranscriptRepository = (*fakeTranscriptRepo)(nil)

type fakeQueueRepo struct {
	published []publishedMsg
}

type publishedMsg struct {
	queueName string
	payload   []byte
}

func (r *fakeQueueRepo) Publish(_ context.Context, queueName string, payload []byte, _ time.Time) (*domain.QueueMessage, error) {
	r.published = append(r.published, publishedMsg{queueName: queueName, payload: payload})
	return &domain.QueueMessage{ID: "msg-1"}, nil
}
func (r *fakeQueueRepo) Claim(_ context.Context, _ string, _ time.Time, _ int) ([]*domain.QueueMessage, error) {
	return nil, nil
}
func (r *fakeQueueRepo) Ack(_ context.Context, _ string) error { return nil }
func (r *fakeQueueRepo) Nack(_ context.Context, _ string, _ time.Time, _ bool) error { return nil }
func (r *fakeQueueRepo) ReleaseStale(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}
func (r *fakeQueueRepo) QueueDepth(_ context.Context, _ string) (int, error) { return 0, nil }

// ---- Equity ----

func TestEquityUsecase_Create_WrapsRepoError(t *testing.T) {
	repoErr := errors.New("db down")
	repo := &fakeEquityRepo{
		create: func(_ context.Context, _ *domain.Equity) (*domain.Equity, error) {
			return nil, repoErr
		},
	}
	_, err := usecase.NewEquityUsecase(repo).Create(context.Background(), &domain.Equity{})
	if !errors.Is(err, repoErr) {
		t.Errorf("want wrapped repoErr, got %v", err)
	}
}

func TestEquityUsecase_Create_ReturnsCreated(t *testing.T) {
	want := &domain.Equity{ID: "eq-1", Symbol: "AAPL"}
	repo := &fakeEquityRepo{
		create: func(_ context.Context, _ *domain.Equity) (*domain.Equity, error) {
			return want, nil
		},
	}
	got, err := usecase.NewEquityUsecase(repo).Create(context.Background(), &domain.Equity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// ---- Group ----

func TestGroupUsecase_SetActive_PropagatesNotFound(t *testing.T) {
	repo := &fakeGroupRepo{
		setActive: func(_ context.Context, _ string, _ bool) error {
			return domain.ErrGroupNotFound
		},
	}
	err := usecase.NewGroupUsecase(repo).SetActive(context.Background(), "missing", true)
	if !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("want ErrGroupNotFound, got %v", err)
	}
}

// ---- Force ----

func TestForceUsecase_Analyze_RejectsUnavailableTranscript(t *testing.T) {
	transcripts := &fakeTranscriptRepo{
		getByID: func(_ context.Context, _ string) (*domain.Transcript, error) {
			return &domain.Transcript{ID: "t-1", Status: domain.TranscriptUpcoming}, nil
		},
	}
	broker := queue.NewBroker(&fakeQueueRepo{})

	err := usecase.NewForceUsecase(transcripts, broker).Analyze(context.Background(), "t-1")
	if !errors.Is(err, domain.ErrTranscriptNotAvailable) {
		t.Errorf("want ErrTranscriptNotAvailable, got %v", err)
	}
}

func TestForceUsecase_Analyze_PublishesForcedRequest(t *testing.T) {
	transcripts := &fakeTranscriptRepo{
		getByID: func(_ context.Context, _ string) (*domain.Transcript, error) {
			return &domain.Transcript{ID: "t-1", SourceURL: "https://example.com/t-1", Status: domain.TranscriptAvailable}, nil
		},
	}
	qr := &fakeQueueRepo{}
	broker := queue.NewBroker(qr)

	if err := usecase.NewForceUsecase(transcripts, broker).Analyze(context.Background(), "t-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(qr.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(qr.published))
	}
	if qr.published[0].queueName != domain.QueueAnalysisRequest {
		t.Errorf("queue = %s, want %s", qr.published[0].queueName, domain.QueueAnalysisRequest)
	}
}

func TestForceUsecase_Research_PublishesForcedRequest(t *testing.T) {
	qr := &fakeQueueRepo{}
	broker := queue.NewBroker(qr)

	err := usecase.NewForceUsecase(&fakeTranscriptRepo{}, broker).Research(context.Background(), "grp-1", 1, 2026)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(qr.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(qr.published))
	}
	if qr.published[0].queueName != domain.QueueGroupResearchRequest {
		t.Errorf("queue = %s, want %s", qr.published[0].queueName, domain.QueueGroupResearchRequest)
	}
}
