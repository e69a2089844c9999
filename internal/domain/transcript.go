package domain

import (
	"errors"
	"time"
)

var (
	ErrTranscriptNotFound     = errors.New("transcript not found")
	ErrTranscriptRegression   = errors.New("transcript status cannot regress from available without force")
	ErrTranscriptNotAvailable = errors.New("transcript has not been fetched yet")
)

// TranscriptStatus mirrors the oracle's observation states.
type TranscriptStatus string

const (
	TranscriptNone      TranscriptStatus = "none"
	TranscriptUpcoming  TranscriptStatus = "upcoming"
	TranscriptAvailable TranscriptStatus = "available"

	// TranscriptCheckError is only ever written to FetchScheduleRow.LastStatus,
	// never to Transcript.Status — it records that the last poll attempt
	// failed permanently, not an observed transcript state.
	TranscriptCheckError TranscriptStatus = "error"
)

// AnalysisStatus tracks the at-most-one-in-flight LLM analysis per transcript.
type AnalysisStatus string

const (
	AnalysisStatusNone       AnalysisStatus = ""
	AnalysisStatusInProgress AnalysisStatus = "in_progress"
	AnalysisStatusDone       AnalysisStatus = "done"
	AnalysisStatusError      AnalysisStatus = "error"
)

// Transcript is keyed by (equity_id, quarter, year); unique per pair.
type Transcript struct {
	ID             string
	EquityID       string
	Quarter        int
	Year           int
	SourceURL      string
	ContentPath    string
	Status         TranscriptStatus
	EventDate      *time.Time
	AnalysisStatus AnalysisStatus
	AnalysisError  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EventOrigin records how an observation reached the system — poll is the
// only origin implemented here; a webhook-driven push is a compatible
// alternative source of the same events, not implemented.
type EventOrigin string

const (
	EventOriginPoll EventOrigin = "poll"
)

// TranscriptEvent is an append-only observation log. Unique on
// (equity_id, quarter, year, source_url) when source_url is non-null.
type TranscriptEvent struct {
	ID         string
	EquityID   string
	Quarter    int
	Year       int
	Status     TranscriptStatus
	SourceURL  string
	EventDate  *time.Time
	Origin     EventOrigin
	ObservedAt time.Time
}
