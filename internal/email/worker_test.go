package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- fakes ----

type fakeOutboxRepo struct {
	claims  []*domain.OutboxRow
	sent    []string
	failed  []failedMark
}

type failedMark struct {
	id   string
	dead bool
}

func (r *fakeOutboxRepo) Enqueue(_ context.Context, _ string, _ []string, _ time.Time) (int, error) {
	return 0, nil
}
func (r *fakeOutboxRepo) Claim(_ context.Context, _ time.Time, _ int) ([]*domain.OutboxRow, error) {
	claims := r.claims
	r.claims = nil
	return claims, nil
}
func (r *fakeOutboxRepo) MarkSent(_ context.Context, id string) error {
	r.sent = append(r.sent, id)
	return nil
}
func (r *fakeOutboxRepo) MarkFailed(_ context.Context, id string, _ *time.Time, dead bool) error {
	r.failed = append(r.failed, failedMark{id: id, dead: dead})
	return nil
}
func (r *fakeOutboxRepo) ReleaseStale(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}
func (r *fakeOutboxRepo) PendingCount(_ context.Context) (int, error) { return len(r.claims), nil }
func (r *fakeOutboxRepo) ListRecipients(_ context.Context) ([]*domain.NotificationRecipient, error) {
	return nil, nil
}

type fakeAnalysisRepo struct {
	analysis *domain.TranscriptAnalysis
	err      error
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
func (r *fakeAnalysisRepo) GetAnalysisByTranscript(_ context.Context, _ string) (*domain.TranscriptAnalysis, error) {
	return nil, nil
}
func (r *fakeAnalysisRepo) GetAnalysisByID(_ context.Context, _ string) (*domain.TranscriptAnalysis, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.analysis, nil
}

type fakeTranscriptRepo struct {
	transcript *domain.Transcript
}

func (r *fakeTranscriptRepo) GetByID(_ context.Context, _ string) (*domain.Transcript, error) {
	return r.transcript, nil
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

type fakeEquityRepo struct {
	equity *domain.Equity
}

func (r *fakeEquityRepo) Create(_ context.Context, e *domain.Equity) (*domain.Equity, error) { return e, nil }
func (r *fakeEquityRepo) GetByID(_ context.Context, _ string) (*domain.Equity, error) {
	return r.equity, nil
}
func (r *fakeEquityRepo) GetByIdentifier(_ context.Context, _ string) (*domain.Equity, error) {
	return nil, nil
}
func (r *fakeEquityRepo) List(_ context.Context, _, _ int) ([]*domain.Equity, error) { return nil, nil }
func (r *fakeEquityRepo) AddToWatchlist(_ context.Context, _ string) error            { return nil }
func (r *fakeEquityRepo) RemoveFromWatchlist(_ context.Context, _ string) error       { return nil }
func (r *fakeEquityRepo) ListWatchlist(_ context.Context) ([]*domain.WatchlistItem, error) {
	return nil, nil
}

type fakeSender struct {
	err      error
	sentTo   []string
	sentSub  string
}

func (s *fakeSender) Send(_ context.Context, to, subject, _ string) error {
	s.sentTo = append(s.sentTo, to)
	s.sentSub = subject
	return s.err
}

// ---- tests ----

func TestWorker_ProcessBatch_Success_MarksSent(t *testing.T) {
	outbox := &fakeOutboxRepo{claims: []*domain.OutboxRow{{ID: "row-1", AnalysisID: "a-1", Recipient: "a@example.com"}}}
	analysisRepo := &fakeAnalysisRepo{analysis: &domain.TranscriptAnalysis{ID: "a-1", TranscriptID: "t-1", OutputText: "great quarter"}}
	transcriptRepo := &fakeTranscriptRepo{transcript: &domain.Transcript{ID: "t-1", EquityID: "eq-1", Quarter: 1, Year: 2026}}
	equityRepo := &fakeEquityRepo{equity: &domain.Equity{ID: "eq-1", Symbol: "AAPL"}}
	sender := &fakeSender{}

	w := NewWorker(outbox, analysisRepo, transcriptRepo, equityRepo, sender, testLogger(), 5, time.Second)
	w.processBatch(context.Background())

	if len(outbox.sent) != 1 {
		t.Fatalf("expected row marked sent, got %v", outbox.sent)
	}
	if len(sender.sentTo) != 1 || sender.sentTo[0] != "a@example.com" {
		t.Errorf("expected send to a@example.com, got %v", sender.sentTo)
	}
	if sender.sentSub == "" {
		t.Error("expected a non-empty subject")
	}
}

func TestWorker_ProcessBatch_RenderError_MarksFailedNotDead(t *testing.T) {
	outbox := &fakeOutboxRepo{claims: []*domain.OutboxRow{{ID: "row-1", AnalysisID: "missing", Recipient: "a@example.com", Attempts: 0}}}
	analysisRepo := &fakeAnalysisRepo{err: errors.New("not found")}
	w := NewWorker(outbox, analysisRepo, &fakeTranscriptRepo{}, &fakeEquityRepo{}, &fakeSender{}, testLogger(), 5, time.Second)

	w.processBatch(context.Background())

	if len(outbox.failed) != 1 {
		t.Fatalf("expected 1 failure recorded, got %v", outbox.failed)
	}
	if outbox.failed[0].dead {
		t.Error("expected retry, not dead-letter, on first failure")
	}
}

func TestWorker_ProcessBatch_SendError_DeadLettersAtAttemptCap(t *testing.T) {
	outbox := &fakeOutboxRepo{claims: []*domain.OutboxRow{{ID: "row-1", AnalysisID: "a-1", Recipient: "a@example.com", Attempts: maxAttempts - 1}}}
	analysisRepo := &fakeAnalysisRepo{analysis: &domain.TranscriptAnalysis{ID: "a-1", TranscriptID: "t-1"}}
	transcriptRepo := &fakeTranscriptRepo{transcript: &domain.Transcript{ID: "t-1", EquityID: "eq-1"}}
	equityRepo := &fakeEquityRepo{equity: &domain.Equity{ID: "eq-1", Symbol: "AAPL"}}
	sender := &fakeSender{err: errors.New("smtp down")}

	w := NewWorker(outbox, analysisRepo, transcriptRepo, equityRepo, sender, testLogger(), 5, time.Second)
	w.processBatch(context.Background())

	if len(outbox.failed) != 1 {
		t.Fatalf("expected 1 failure recorded, got %v", outbox.failed)
	}
	if !outbox.failed[0].dead {
		t.Error("expected dead-letter once attempts reach the cap")
	}
}
