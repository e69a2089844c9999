package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	"github.com/earningsdesk/transcript-pipeline/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// ---- fakes ----

type fakeOracle struct {
	obs Observation
}

func (o *fakeOracle) Lookup(_ context.Context, _ *domain.Equity, _, _ int) Observation {
	return o.obs
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

type fakeEquityRepo struct {
	equity     *domain.Equity
	watchlist  []*domain.WatchlistItem
}

func (r *fakeEquityRepo) Create(_ context.Context, e *domain.Equity) (*domain.Equity, error) { return e, nil }
func (r *fakeEquityRepo) GetByID(_ context.Context, _ string) (*domain.Equity, error) {
	return r.equity, nil
}
func (r *fakeEquityRepo) GetByIdentifier(_ context.Context, _ string) (*domain.Equity, error) {
	return r.equity, nil
}
func (r *fakeEquityRepo) List(_ context.Context, _, _ int) ([]*domain.Equity, error) { return nil, nil }
func (r *fakeEquityRepo) AddToWatchlist(_ context.Context, _ string) error            { return nil }
func (r *fakeEquityRepo) RemoveFromWatchlist(_ context.Context, _ string) error       { return nil }
func (r *fakeEquityRepo) ListWatchlist(_ context.Context) ([]*domain.WatchlistItem, error) {
	return r.watchlist, nil
}

type fakeGroupRepo struct {
	groupsForEquity []*domain.Group
}

func (r *fakeGroupRepo) Create(_ context.Context, g *domain.Group) (*domain.Group, error) { return g, nil }
func (r *fakeGroupRepo) GetByID(_ context.Context, _ string) (*domain.Group, error)       { return nil, nil }
func (r *fakeGroupRepo) List(_ context.Context) ([]*domain.Group, error)                  { return nil, nil }
func (r *fakeGroupRepo) SetActive(_ context.Context, _ string, _ bool) error              { return nil }
func (r *fakeGroupRepo) AddMember(_ context.Context, _, _ string) error                   { return nil }
func (r *fakeGroupRepo) RemoveMember(_ context.Context, _, _ string) error                { return nil }
func (r *fakeGroupRepo) ListMembers(_ context.Context, _ string) ([]*domain.GroupMembership, error) {
	return nil, nil
}
func (r *fakeGroupRepo) ListGroupsForEquity(_ context.Context, _ string) ([]*domain.Group, error) {
	return r.groupsForEquity, nil
}

type fakeScheduleRepo struct {
	row      *domain.FetchScheduleRow
	advanced bool
}

func (r *fakeScheduleRepo) Upsert(_ context.Context, row *domain.FetchScheduleRow) (*domain.FetchScheduleRow, error) {
	return row, nil
}
func (r *fakeScheduleRepo) GetByEquityQuarter(_ context.Context, _ string, _, _ int) (*domain.FetchScheduleRow, error) {
	if r.row == nil {
		return nil, domain.ErrScheduleRowNotFound
	}
	return r.row, nil
}
func (r *fakeScheduleRepo) ClaimDue(_ context.Context, _, _ time.Time, _ int) ([]*domain.FetchScheduleRow, error) {
	return nil, nil
}
func (r *fakeScheduleRepo) Advance(_ context.Context, _ string, _ domain.TranscriptStatus, _ time.Time, _ bool) error {
	r.advanced = true
	return nil
}
func (r *fakeScheduleRepo) Retire(_ context.Context, _ time.Time, _ int) (int, error) { return 0, nil }
func (r *fakeScheduleRepo) ReleaseStale(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

type fakeTranscriptRepo struct {
	upserted       []*domain.Transcript
	events         []*domain.TranscriptEvent
	duplicateEvent bool
}

func (r *fakeTranscriptRepo) GetByID(_ context.Context, _ string) (*domain.Transcript, error) {
	return nil, nil
}
func (r *fakeTranscriptRepo) GetByEquityQuarter(_ context.Context, _ string, _, _ int) (*domain.Transcript, error) {
	return nil, nil
}
func (r *fakeTranscriptRepo) Upsert(_ context.Context, t *domain.Transcript, _ bool) (*domain.Transcript, error) {
	t.ID = "t-1"
	r.upserted = append(r.upserted, t)
	return t, nil
}
func (r *fakeTranscriptRepo) AppendEvent(_ context.Context, ev *domain.TranscriptEvent) (bool, error) {
	r.events = append(r.events, ev)
	return !r.duplicateEvent, nil
}
func (r *fakeTranscriptRepo) SetAnalysisStatus(_ context.Context, _ string, _ domain.AnalysisStatus, _ *string) error {
	return nil
}
func (r *fakeTranscriptRepo) SetContentPath(_ context.Context, _ string, _ string) error { return nil }

// ---- helpers ----

func newTestPool(qr *fakeQueueRepo, eq *fakeEquityRepo, gr *fakeGroupRepo, sr *fakeScheduleRepo, tr *fakeTranscriptRepo, oracle Oracle) *Pool {
	broker := queue.NewBroker(qr)
	bucket := ratelimit.NewBucket(1000)
	return NewPool(broker, oracle, bucket, eq, gr, sr, tr, testLogger(), 5, time.Second)
}

// ---- tests ----

func TestProcessBatch_AvailableOnWatchlist_PublishesAnalysisRequest(t *testing.T) {
	row := &domain.FetchScheduleRow{ID: "row-1", EquityID: "eq-1", Quarter: 1, Year: 2026}
	payload, _ := marshalPayload(domain.TranscriptCheckPayload{RowID: row.ID, EquityID: row.EquityID, Quarter: row.Quarter, Year: row.Year})

	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}
	eq := &fakeEquityRepo{equity: &domain.Equity{ID: "eq-1", Identifier: "us-eq1"}, watchlist: []*domain.WatchlistItem{{EquityID: "eq-1"}}}
	gr := &fakeGroupRepo{}
	sr := &fakeScheduleRepo{row: row}
	tr := &fakeTranscriptRepo{}
	oracle := &fakeOracle{obs: Observation{Kind: ObservationAvailable, SourceURL: "https://example.com/t"}}

	p := newTestPool(qr, eq, gr, sr, tr, oracle)
	p.processBatch(context.Background())

	if len(qr.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(qr.published))
	}
	if qr.published[0].queueName != domain.QueueAnalysisRequest {
		t.Errorf("published to %s, want %s", qr.published[0].queueName, domain.QueueAnalysisRequest)
	}
	if !sr.advanced {
		t.Error("expected schedule row to be advanced")
	}
	if len(qr.acked) != 1 {
		t.Errorf("expected message to be acked, got %v", qr.acked)
	}
}

func TestProcessBatch_AvailableRepeatPoll_DoesNotRepublish(t *testing.T) {
	row := &domain.FetchScheduleRow{ID: "row-1", EquityID: "eq-1", Quarter: 1, Year: 2026}
	payload, _ := marshalPayload(domain.TranscriptCheckPayload{RowID: row.ID, EquityID: row.EquityID, Quarter: row.Quarter, Year: row.Year})

	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}
	eq := &fakeEquityRepo{equity: &domain.Equity{ID: "eq-1", Identifier: "us-eq1"}, watchlist: []*domain.WatchlistItem{{EquityID: "eq-1"}}}
	gr := &fakeGroupRepo{}
	sr := &fakeScheduleRepo{row: row}
	tr := &fakeTranscriptRepo{duplicateEvent: true}
	oracle := &fakeOracle{obs: Observation{Kind: ObservationAvailable, SourceURL: "https://example.com/t"}}

	p := newTestPool(qr, eq, gr, sr, tr, oracle)
	p.processBatch(context.Background())

	if len(qr.published) != 0 {
		t.Fatalf("expected no republish on a repeat observation of an already-available row, got %d", len(qr.published))
	}
	if !sr.advanced {
		t.Error("expected schedule row to still be advanced")
	}
}

func TestProcessBatch_AvailableNotEligible_DoesNotPublish(t *testing.T) {
	row := &domain.FetchScheduleRow{ID: "row-1", EquityID: "eq-1", Quarter: 1, Year: 2026}
	payload, _ := marshalPayload(domain.TranscriptCheckPayload{RowID: row.ID, EquityID: row.EquityID, Quarter: row.Quarter, Year: row.Year})

	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}
	eq := &fakeEquityRepo{equity: &domain.Equity{ID: "eq-1", Identifier: "us-eq1"}}
	gr := &fakeGroupRepo{}
	sr := &fakeScheduleRepo{row: row}
	tr := &fakeTranscriptRepo{}
	oracle := &fakeOracle{obs: Observation{Kind: ObservationAvailable, SourceURL: "https://example.com/t"}}

	p := newTestPool(qr, eq, gr, sr, tr, oracle)
	p.processBatch(context.Background())

	if len(qr.published) != 0 {
		t.Fatalf("expected no published messages, got %d", len(qr.published))
	}
}

func TestProcessBatch_ScheduleRowMissing_Acks(t *testing.T) {
	payload, _ := marshalPayload(domain.TranscriptCheckPayload{RowID: "row-1", EquityID: "eq-1", Quarter: 1, Year: 2026})

	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}
	eq := &fakeEquityRepo{}
	gr := &fakeGroupRepo{}
	sr := &fakeScheduleRepo{}
	tr := &fakeTranscriptRepo{}
	oracle := &fakeOracle{}

	p := newTestPool(qr, eq, gr, sr, tr, oracle)
	p.processBatch(context.Background())

	if len(qr.acked) != 1 {
		t.Errorf("expected missing schedule row to be acked, got %v", qr.acked)
	}
}

func TestProcessBatch_PermanentError_AdvancesWithErrorStatus(t *testing.T) {
	row := &domain.FetchScheduleRow{ID: "row-1", EquityID: "eq-1", Quarter: 1, Year: 2026}
	payload, _ := marshalPayload(domain.TranscriptCheckPayload{RowID: row.ID, EquityID: row.EquityID, Quarter: row.Quarter, Year: row.Year})

	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}
	eq := &fakeEquityRepo{equity: &domain.Equity{ID: "eq-1", Identifier: "us-eq1"}}
	gr := &fakeGroupRepo{}
	sr := &fakeScheduleRepo{row: row}
	tr := &fakeTranscriptRepo{}
	oracle := &fakeOracle{obs: Observation{Kind: ObservationPermanentErr}}

	p := newTestPool(qr, eq, gr, sr, tr, oracle)
	p.processBatch(context.Background())

	if !sr.advanced {
		t.Error("expected schedule row to be advanced after permanent error")
	}
	if len(qr.acked) != 1 {
		t.Errorf("expected message to be acked, got %v", qr.acked)
	}
}
