package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
)

func TestEnqueuer_ProcessOnce_CreatesJobAndAcks(t *testing.T) {
	payload, _ := json.Marshal(domain.AnalysisRequestPayload{TranscriptID: "t-1", SourceURL: "https://example.com/t"})
	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}
	repo := &fakeAnalysisRepo{}

	e := NewEnqueuer(queue.NewBroker(qr), repo, testLogger())
	e.ProcessOnce(context.Background(), 10)

	if len(qr.acked) != 1 {
		t.Errorf("expected message acked, got %v", qr.acked)
	}
	if len(qr.nacked) != 0 {
		t.Errorf("expected no nacks, got %v", qr.nacked)
	}
}

func TestEnqueuer_ProcessOnce_BadPayload_NacksDeadLetter(t *testing.T) {
	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: []byte("not json")}}}
	repo := &fakeAnalysisRepo{}

	e := NewEnqueuer(queue.NewBroker(qr), repo, testLogger())
	e.ProcessOnce(context.Background(), 10)

	if len(qr.nacked) != 1 {
		t.Errorf("expected bad payload nacked, got %v", qr.nacked)
	}
	if len(qr.acked) != 0 {
		t.Errorf("expected no acks, got %v", qr.acked)
	}
}

type erroringAnalysisRepo struct {
	fakeAnalysisRepo
	createErr error
}

func (r *erroringAnalysisRepo) CreateJob(_ context.Context, job *domain.AnalysisJob) (*domain.AnalysisJob, bool, error) {
	return nil, false, r.createErr
}

func TestEnqueuer_ProcessOnce_CreateJobError_NacksForRetry(t *testing.T) {
	payload, _ := json.Marshal(domain.AnalysisRequestPayload{TranscriptID: "t-1", SourceURL: "https://example.com/t"})
	qr := &fakeQueueRepo{claims: []*domain.QueueMessage{{ID: "msg-1", Payload: payload}}}
	repo := &erroringAnalysisRepo{createErr: errors.New("db down")}

	e := NewEnqueuer(queue.NewBroker(qr), repo, testLogger())
	e.ProcessOnce(context.Background(), 10)

	if len(qr.nacked) != 1 {
		t.Errorf("expected nack for retry, got %v", qr.nacked)
	}
}

