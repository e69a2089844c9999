package research

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/llm"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- fakes ----

type fakeResearchRepo struct {
	ready    map[string]bool
	runs     map[string]*domain.GroupResearchRun
	reserved bool
	completed []string
	failed    []string
}

func newFakeResearchRepo() *fakeResearchRepo {
	return &fakeResearchRepo{ready: map[string]bool{}, runs: map[string]*domain.GroupResearchRun{}}
}

func (r *fakeResearchRepo) GetOrCreate(_ context.Context, groupID string, quarter, year int, prompt string) (*domain.GroupResearchRun, bool, error) {
	key := groupID
	if run, ok := r.runs[key]; ok {
		return run, false, nil
	}
	run := &domain.GroupResearchRun{ID: "run-" + groupID, GroupID: groupID, Quarter: quarter, Year: year, PromptSnapshot: prompt}
	r.runs[key] = run
	return run, true, nil
}
func (r *fakeResearchRepo) GetByID(_ context.Context, id string) (*domain.GroupResearchRun, error) {
	for _, run := range r.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, domain.ErrResearchRunNotFound
}
func (r *fakeResearchRepo) IsReady(_ context.Context, groupID string, _, _ int) (bool, error) {
	return r.ready[groupID], nil
}
func (r *fakeResearchRepo) TryReserve(_ context.Context, _ string, _ bool) (bool, error) {
	return r.reserved, nil
}
func (r *fakeResearchRepo) Complete(_ context.Context, id string, _ string, _ domain.ModelRef) error {
	r.completed = append(r.completed, id)
	return nil
}
func (r *fakeResearchRepo) Fail(_ context.Context, id string, _ string) error {
	r.failed = append(r.failed, id)
	return nil
}
func (r *fakeResearchRepo) ClaimStale(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

type fakeGroupRepo struct {
	groupsForEquity []*domain.Group
	group           *domain.Group
	members         []*domain.GroupMembership
	allGroups       []*domain.Group
}

func (r *fakeGroupRepo) Create(_ context.Context, g *domain.Group) (*domain.Group, error) { return g, nil }
func (r *fakeGroupRepo) GetByID(_ context.Context, _ string) (*domain.Group, error)       { return r.group, nil }
func (r *fakeGroupRepo) List(_ context.Context) ([]*domain.Group, error)                  { return r.allGroups, nil }
func (r *fakeGroupRepo) SetActive(_ context.Context, _ string, _ bool) error              { return nil }
func (r *fakeGroupRepo) AddMember(_ context.Context, _, _ string) error                   { return nil }
func (r *fakeGroupRepo) RemoveMember(_ context.Context, _, _ string) error                { return nil }
func (r *fakeGroupRepo) ListMembers(_ context.Context, _ string) ([]*domain.GroupMembership, error) {
	return r.members, nil
}
func (r *fakeGroupRepo) ListGroupsForEquity(_ context.Context, _ string) ([]*domain.Group, error) {
	return r.groupsForEquity, nil
}

type fakeTranscriptRepo struct {
	byEquity map[string]*domain.Transcript
}

func (r *fakeTranscriptRepo) GetByID(_ context.Context, _ string) (*domain.Transcript, error) {
	return nil, nil
}
func (r *fakeTranscriptRepo) GetByEquityQuarter(_ context.Context, equityID string, _, _ int) (*domain.Transcript, error) {
	t, ok := r.byEquity[equityID]
	if !ok {
		return nil, domain.ErrTranscriptNotFound
	}
	return t, nil
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

type fakeAnalysisRepo struct {
	byTranscript map[string]*domain.TranscriptAnalysis
}

func (r *fakeAnalysisRepo) CreateJob(_ context.Context, job *domain.AnalysisJob) (*domain.AnalysisJob, bool, error) {
	return job, true, nil
}
func (r *fakeAnalysisRepo) ClaimJobs(_ context.Context, _ time.Time, _ int) ([]*domain.AnalysisJob, error) {
	return nil, nil
}
func (r *fakeAnalysisRepo) CompleteJob(_ context.Context, _ string) error { return nil }
func (r *fakeAnalysisRepo) FailJob(_ context.Context, _ string, _ *time.Time, _ string) error {
	return nil
}
func (r *fakeAnalysisRepo) ReleaseStaleJobs(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}
func (r *fakeAnalysisRepo) TryReserveTranscriptAnalysis(_ context.Context, _ string, _ bool) (bool, error) {
	return true, nil
}
func (r *fakeAnalysisRepo) SaveAnalysis(_ context.Context, a *domain.TranscriptAnalysis) (*domain.TranscriptAnalysis, error) {
	return a, nil
}
func (r *fakeAnalysisRepo) GetAnalysisByTranscript(_ context.Context, transcriptID string) (*domain.TranscriptAnalysis, error) {
	a, ok := r.byTranscript[transcriptID]
	if !ok {
		return nil, domain.ErrAnalysisNotFound
	}
	return a, nil
}
func (r *fakeAnalysisRepo) GetAnalysisByID(_ context.Context, _ string) (*domain.TranscriptAnalysis, error) {
	return nil, nil
}

type fakeQueueRepo struct {
	published []publishedMsg
	claims    []*domain.QueueMessage
	acked     []string
	nacked    []string
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
	claims := r.claims
	r.claims = nil
	return claims, nil
}
func (r *fakeQueueRepo) Ack(_ context.Context, id string) error {
	r.acked = append(r.acked, id)
	return nil
}
func (r *fakeQueueRepo) Nack(_ context.Context, id string, _ time.Time, _ bool) error {
	r.nacked = append(r.nacked, id)
	return nil
}
func (r *fakeQueueRepo) ReleaseStale(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}
func (r *fakeQueueRepo) QueueDepth(_ context.Context, _ string) (int, error) { return 0, nil }

// ---- tests ----

func TestProcessBatch_StageOneReady_PublishesStageTwo(t *testing.T) {
	payload, _ := json.Marshal(domain.GroupResearchRequestPayload{EquityID: "eq-1", Quarter: 1, Year: 2026})
	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}

	researchRepo := newFakeResearchRepo()
	researchRepo.ready["grp-1"] = true
	groupRepo := &fakeGroupRepo{groupsForEquity: []*domain.Group{{ID: "grp-1", DeepResearchPrompt: "compare these"}}}

	c := NewCoordinator(researchRepo, groupRepo, &fakeTranscriptRepo{}, &fakeAnalysisRepo{}, queue.NewBroker(qr),
		llm.NewStubProvider(testLogger()), testLogger(), 10)
	c.processBatch(context.Background())

	if len(qr.published) != 1 {
		t.Fatalf("expected 1 stage-2 message published, got %d", len(qr.published))
	}
	if qr.published[0].queueName != domain.QueueGroupResearchRequest {
		t.Errorf("published to %s, want %s", qr.published[0].queueName, domain.QueueGroupResearchRequest)
	}
	if len(qr.acked) != 1 {
		t.Errorf("expected message acked, got %v", qr.acked)
	}
}

func TestProcessBatch_StageOneNotReady_NoPublish(t *testing.T) {
	payload, _ := json.Marshal(domain.GroupResearchRequestPayload{EquityID: "eq-1", Quarter: 1, Year: 2026})
	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}

	researchRepo := newFakeResearchRepo()
	groupRepo := &fakeGroupRepo{groupsForEquity: []*domain.Group{{ID: "grp-1"}}}

	c := NewCoordinator(researchRepo, groupRepo, &fakeTranscriptRepo{}, &fakeAnalysisRepo{}, queue.NewBroker(qr),
		llm.NewStubProvider(testLogger()), testLogger(), 10)
	c.processBatch(context.Background())

	if len(qr.published) != 0 {
		t.Errorf("expected no publish when group not ready, got %d", len(qr.published))
	}
}

func TestProcessBatch_StageTwo_CompletesRun(t *testing.T) {
	payload, _ := json.Marshal(domain.GroupResearchRequestPayload{GroupID: "grp-1", Quarter: 1, Year: 2026})
	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}

	researchRepo := newFakeResearchRepo()
	researchRepo.reserved = true
	groupRepo := &fakeGroupRepo{
		group:   &domain.Group{ID: "grp-1", DeepResearchPrompt: "compare these"},
		members: []*domain.GroupMembership{{GroupID: "grp-1", EquityID: "eq-1"}},
	}
	transcriptRepo := &fakeTranscriptRepo{byEquity: map[string]*domain.Transcript{"eq-1": {ID: "t-1", EquityID: "eq-1"}}}
	analysisRepo := &fakeAnalysisRepo{byTranscript: map[string]*domain.TranscriptAnalysis{"t-1": {ID: "a-1", OutputText: "solid quarter"}}}

	c := NewCoordinator(researchRepo, groupRepo, transcriptRepo, analysisRepo, queue.NewBroker(qr),
		llm.NewStubProvider(testLogger()), testLogger(), 10)
	c.processBatch(context.Background())

	if len(researchRepo.completed) != 1 {
		t.Fatalf("expected run completed, got %v", researchRepo.completed)
	}
	if len(qr.acked) != 1 {
		t.Errorf("expected message acked, got %v", qr.acked)
	}
}

func TestProcessBatch_StageTwo_NotReserved_Acks(t *testing.T) {
	payload, _ := json.Marshal(domain.GroupResearchRequestPayload{GroupID: "grp-1", Quarter: 1, Year: 2026})
	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}

	researchRepo := newFakeResearchRepo()
	researchRepo.reserved = false
	groupRepo := &fakeGroupRepo{group: &domain.Group{ID: "grp-1"}}

	c := NewCoordinator(researchRepo, groupRepo, &fakeTranscriptRepo{}, &fakeAnalysisRepo{}, queue.NewBroker(qr),
		llm.NewStubProvider(testLogger()), testLogger(), 10)
	c.processBatch(context.Background())

	if len(researchRepo.completed) != 0 {
		t.Errorf("expected no completion when reserve lost, got %v", researchRepo.completed)
	}
	if len(qr.acked) != 1 {
		t.Errorf("expected message acked, got %v", qr.acked)
	}
}
