package repository

import (
	"context"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

type AnalysisRepository interface {
	// CreateJob inserts a pending AnalysisJob, or returns the existing row
	// when idempotencyKey already exists — the caller treats both outcomes
	// the same way (enqueue-or-join).
	CreateJob(ctx context.Context, job *domain.AnalysisJob) (*domain.AnalysisJob, bool, error)

	ClaimJobs(ctx context.Context, leaseUntil time.Time, limit int) ([]*domain.AnalysisJob, error)
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID string, retryAt *time.Time, errMsg string) error
	ReleaseStaleJobs(ctx context.Context, staleCutoff time.Time, limit int) (int, error)

	// TryReserveTranscriptAnalysis is the compare-and-set gate enforcing
	// at-most-one in-flight analysis per transcript: it flips
	// AnalysisStatusNone/Error to AnalysisStatusInProgress and reports
	// whether this caller won the race via the affected row count.
	TryReserveTranscriptAnalysis(ctx context.Context, transcriptID string, force bool) (bool, error)

	SaveAnalysis(ctx context.Context, a *domain.TranscriptAnalysis) (*domain.TranscriptAnalysis, error)
	GetAnalysisByTranscript(ctx context.Context, transcriptID string) (*domain.TranscriptAnalysis, error)
	GetAnalysisByID(ctx context.Context, id string) (*domain.TranscriptAnalysis, error)
}
