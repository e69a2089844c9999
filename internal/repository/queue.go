package repository

import (
	"context"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

// QueueRepository backs the Postgres broker. It is deliberately payload-agnostic:
// callers marshal/unmarshal their own JSON, so one table and one repository
// serve every queue name.
type QueueRepository interface {
	Publish(ctx context.Context, queueName string, payload []byte, availableAt time.Time) (*domain.QueueMessage, error)

	// Claim locks up to limit due messages from queueName with SKIP LOCKED
	// semantics and extends their lease to leaseUntil.
	Claim(ctx context.Context, queueName string, leaseUntil time.Time, limit int) ([]*domain.QueueMessage, error)

	Ack(ctx context.Context, id string) error
	// Nack releases the lease and schedules a redelivery at retryAt, or
	// dead-letters the message when deadLetter is set.
	Nack(ctx context.Context, id string, retryAt time.Time, deadLetter bool) error

	ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
	QueueDepth(ctx context.Context, queueName string) (int, error)
}
