package domain

import (
	"errors"
	"time"
)

var ErrQueueMessageNotFound = errors.New("queue message not found")

// Named queues used by the core.
const (
	QueueTranscriptCheck      = "transcript_check"
	QueueAnalysisRequest      = "analysis_request"
	QueueGroupResearchRequest = "group_research_request"

	// QueueEmailSend names the lane for metrics/logging purposes only — its
	// messages are realized directly as OutboxRow claims, not generic
	// QueueMessage payloads, since the outbox needs to be independently
	// inspectable from the admin surface.
	QueueEmailSend = "email_send"
)

// QueueMessage is a durable, leased unit of work.
type QueueMessage struct {
	ID          string
	QueueName   string
	Payload     []byte
	AvailableAt time.Time
	LockedUntil time.Time
	Attempts    int
	CreatedAt   time.Time
}

// TranscriptCheckPayload is published by the Scheduler, consumed by the Fetcher pool.
type TranscriptCheckPayload struct {
	RowID    string `json:"row_id"`
	EquityID string `json:"equity_id"`
	Quarter  int    `json:"quarter"`
	Year     int    `json:"year"`
}

// AnalysisRequestPayload is published by the Fetcher pool (or the admin
// surface's force-analyze path), consumed by the Analysis pool.
type AnalysisRequestPayload struct {
	TranscriptID string `json:"transcript_id"`
	SourceURL    string `json:"source_url"`
	Force        bool   `json:"force"`

	// ForceNonce distinguishes repeated force-analyze requests for the same
	// transcript from one another. Left empty for the Fetcher pool's
	// non-forced publishes, where the stable (transcript, source URL, force)
	// triple is exactly the dedup key a repeat poll should collide with.
	ForceNonce string `json:"force_nonce,omitempty"`
}

// GroupResearchRequestPayload is published both by the Analysis pool's
// fan-in trigger and by a user-initiated force.
type GroupResearchRequestPayload struct {
	GroupID  string `json:"group_id"`
	EquityID string `json:"equity_id,omitempty"`
	Quarter  int    `json:"quarter"`
	Year     int    `json:"year"`
	Force    bool   `json:"force"`
}
