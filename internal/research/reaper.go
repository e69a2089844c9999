package research

import (
	"context"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/repository"
)

// staleRunAdapter lets group research runs reuse queue.Reaper's sweep loop
// even though the repository method is named ClaimStale rather than
// ReleaseStale — it marks runs stuck in_progress behind a crashed worker as
// error with the message "worker timeout".
type staleRunAdapter struct {
	repo repository.ResearchRepository
}

func NewStaleRunAdapter(repo repository.ResearchRepository) interface {
	ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
} {
	return staleRunAdapter{repo: repo}
}

func (a staleRunAdapter) ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	return a.repo.ClaimStale(ctx, staleCutoff, limit)
}
