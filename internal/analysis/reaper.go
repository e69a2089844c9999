package analysis

import (
	"context"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/repository"
)

// staleJobAdapter lets analysis jobs reuse queue.Reaper's sweep loop even
// though the repository method is named ReleaseStaleJobs rather than
// ReleaseStale, to avoid forcing every stale-lease sweep in the system onto
// one identically-named method.
type staleJobAdapter struct {
	repo repository.AnalysisRepository
}

func NewStaleJobAdapter(repo repository.AnalysisRepository) interface {
	ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
} {
	return staleJobAdapter{repo: repo}
}

func (a staleJobAdapter) ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	return a.repo.ReleaseStaleJobs(ctx, staleCutoff, limit)
}
