package repository

import (
	"context"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

type ResearchRepository interface {
	GetOrCreate(ctx context.Context, groupID string, quarter, year int, promptSnapshot string) (*domain.GroupResearchRun, bool, error)
	GetByID(ctx context.Context, id string) (*domain.GroupResearchRun, error)

	// IsReady runs the single fan-in join: true once every member equity of
	// the group has a done TranscriptAnalysis for (quarter, year).
	IsReady(ctx context.Context, groupID string, quarter, year int) (bool, error)

	// TryReserve is the pending->in_progress compare-and-set gate, mirroring
	// TryReserveTranscriptAnalysis for the research fan-in path.
	TryReserve(ctx context.Context, id string, force bool) (bool, error)

	Complete(ctx context.Context, id string, outputText string, modelRef domain.ModelRef) error
	Fail(ctx context.Context, id string, errMsg string) error

	ClaimStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
}
