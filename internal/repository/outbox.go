package repository

import (
	"context"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

type OutboxRepository interface {
	// Enqueue writes one row per (analysis_id, recipient) pair, skipping any
	// pair that already exists so a retried fan-out never double-sends.
	Enqueue(ctx context.Context, analysisID string, recipients []string, scheduledAt time.Time) (int, error)

	Claim(ctx context.Context, leaseUntil time.Time, limit int) ([]*domain.OutboxRow, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, retryAt *time.Time, dead bool) error
	ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)

	// PendingCount reports rows still awaiting delivery, for backlog metrics.
	PendingCount(ctx context.Context) (int, error)

	ListRecipients(ctx context.Context) ([]*domain.NotificationRecipient, error)
}
