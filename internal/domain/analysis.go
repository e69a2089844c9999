package domain

import (
	"errors"
	"time"
)

var (
	ErrAnalysisJobNotFound  = errors.New("analysis job not found")
	ErrDuplicateAnalysisJob = errors.New("analysis job with this idempotency key already exists")
	ErrAnalysisNotReserved  = errors.New("transcript analysis could not be reserved")
	ErrAnalysisNotFound     = errors.New("transcript analysis not found")
)

// JobStatus is shared by AnalysisJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobDone       JobStatus = "done"
	JobError      JobStatus = "error"
	JobDead       JobStatus = "dead"
)

// AnalysisJob tracks one attempt at producing a TranscriptAnalysis.
// IdempotencyKey is a deterministic hash of (transcript_id, source_url, force,
// force generation), so each forced re-analysis gets a key of its own.
type AnalysisJob struct {
	ID             string
	TranscriptID   string
	Status         JobStatus
	Attempts       int
	IdempotencyKey string
	Force          bool
	RetryNextAt    time.Time
	LockedUntil    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TranscriptAnalysis is the durable output of one LLM call over a transcript.
type TranscriptAnalysis struct {
	ID             string
	TranscriptID   string
	PromptSnapshot string
	OutputText     string
	ModelRef       ModelRef
	TokensIn       int
	TokensOut      int
	Cost           float64
	CreatedAt      time.Time
}

// ModelRef is a stable provider/model identifier, kept as a closed struct
// rather than an opaque string tag so callers can't typo a provider name.
type ModelRef struct {
	Provider string `json:"provider"`
	ModelID  string `json:"model_id"`
	Revision string `json:"revision"`
}

func (m ModelRef) String() string {
	if m.Revision == "" {
		return m.Provider + "/" + m.ModelID
	}
	return m.Provider + "/" + m.ModelID + "@" + m.Revision
}
