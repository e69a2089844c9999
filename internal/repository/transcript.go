package repository

import (
	"context"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

type TranscriptRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Transcript, error)
	GetByEquityQuarter(ctx context.Context, equityID string, quarter, year int) (*domain.Transcript, error)

	// Upsert writes the latest observed state for (equity_id, quarter, year).
	// A transition away from "available" is rejected unless allowRegression
	// is set, since a flaky oracle response should never silently erase a
	// transcript that was already fetched.
	Upsert(ctx context.Context, t *domain.Transcript, allowRegression bool) (*domain.Transcript, error)

	// AppendEvent records an observation. The returned bool is true only when
	// the insert actually happened — false when the (equity_id, quarter,
	// year, source_url) tuple was already recorded and the conflict clause
	// no-opped, so callers can tell a genuine transition from a repeat poll.
	AppendEvent(ctx context.Context, ev *domain.TranscriptEvent) (bool, error)

	SetAnalysisStatus(ctx context.Context, id string, status domain.AnalysisStatus, errMsg *string) error
	SetContentPath(ctx context.Context, id string, contentPath string) error
}
