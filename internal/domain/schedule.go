package domain

import (
	"errors"
	"time"
)

var ErrScheduleRowNotFound = errors.New("fetch schedule row not found")

// Priority lanes for the dispatch loop — lower wins ties.
const (
	PriorityWatchlist     = 10
	PriorityGroupOnly     = 20
	PriorityReconciliation = 90
	PriorityRetired       = 99
)

// FetchScheduleRow drives the Scheduler's dispatch loop. Unique on
// (equity_id, quarter, year).
type FetchScheduleRow struct {
	ID              string
	EquityID        string
	Quarter         int
	Year            int
	Priority        int
	NextCheckAt     time.Time
	LastStatus      TranscriptStatus
	LastCheckedAt   *time.Time
	LastAvailableAt *time.Time
	Attempts        int
	LockedUntil     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Claimable reports whether the row is due and not currently leased:
// next_check_at <= now AND locked_until < now.
func (r *FetchScheduleRow) Claimable(now time.Time) bool {
	return !r.NextCheckAt.After(now) && r.LockedUntil.Before(now)
}
