package repository

import (
	"context"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

type ScheduleRepository interface {
	Upsert(ctx context.Context, row *domain.FetchScheduleRow) (*domain.FetchScheduleRow, error)
	GetByEquityQuarter(ctx context.Context, equityID string, quarter, year int) (*domain.FetchScheduleRow, error)

	// ClaimDue atomically selects claimable rows (ordered by priority, then
	// next_check_at), takes out a lease until leaseUntil, and returns them.
	// Mirrors the scheduler's dispatcher: claim first, compute the next
	// cadence in the caller, then Advance.
	ClaimDue(ctx context.Context, now time.Time, leaseUntil time.Time, limit int) ([]*domain.FetchScheduleRow, error)

	// Advance records the outcome of a check and schedules the next one.
	Advance(ctx context.Context, id string, status domain.TranscriptStatus, nextCheckAt time.Time, availableNow bool) error

	// Retire lowers priority on rows whose last_available_at is older than
	// cutoff — the quarter they cover is long closed out.
	Retire(ctx context.Context, cutoff time.Time, limit int) (int, error)

	// ReleaseStale clears leases left behind by a crashed worker so the row
	// becomes claimable again.
	ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
}
