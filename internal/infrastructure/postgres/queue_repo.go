package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

// QueueRepository backs every named queue with a single table. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent worker pools never double-claim a
// message.
type QueueRepository struct {
	pool *pgxpool.Pool
}

func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

func (r *QueueRepository) Publish(ctx context.Context, queueName string, payload []byte, availableAt time.Time) (*domain.QueueMessage, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO queue_messages (queue_name, payload, available_at)
		VALUES ($1, $2, $3)
		RETURNING id, queue_name, payload, available_at, locked_until, attempts, created_at`,
		queueName, payload, availableAt)
	return scanQueueMessage(row)
}

func (r *QueueRepository) Claim(ctx context.Context, queueName string, leaseUntil time.Time, limit int) ([]*domain.QueueMessage, error) {
	query := `
		UPDATE queue_messages
		SET    locked_until = $3, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM queue_messages
			WHERE  queue_name = $1 AND available_at <= NOW() AND locked_until < NOW()
			ORDER BY available_at ASC, id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue_name, payload, available_at, locked_until, attempts, created_at`

	rows, err := r.pool.Query(ctx, query, queueName, limit, leaseUntil)
	if err != nil {
		return nil, fmt.Errorf("claim queue messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.QueueMessage
	for rows.Next() {
		m, err := scanQueueMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *QueueRepository) Ack(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM queue_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ack queue message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQueueMessageNotFound
	}
	return nil
}

func (r *QueueRepository) Nack(ctx context.Context, id string, retryAt time.Time, deadLetter bool) error {
	if deadLetter {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO dead_letter_messages (id, queue_name, payload, attempts)
			SELECT id, queue_name, payload, attempts FROM queue_messages WHERE id = $1
			ON CONFLICT (id) DO NOTHING`, id)
		if err != nil {
			return fmt.Errorf("dead-letter queue message: %w", err)
		}
		_, err = r.pool.Exec(ctx, `DELETE FROM queue_messages WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("remove dead-lettered message: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE queue_messages SET available_at = $2, locked_until = '-infinity' WHERE id = $1`,
		id, retryAt)
	if err != nil {
		return fmt.Errorf("nack queue message: %w", err)
	}
	return nil
}

func (r *QueueRepository) ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_messages
		SET    locked_until = '-infinity'
		WHERE id IN (
			SELECT id FROM queue_messages
			WHERE  locked_until >= $1 AND locked_until < NOW()
			ORDER BY locked_until ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("release stale queue messages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *QueueRepository) QueueDepth(ctx context.Context, queueName string) (int, error) {
	var depth int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM queue_messages WHERE queue_name = $1 AND available_at <= NOW()`,
		queueName).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

func scanQueueMessage(row rowScanner) (*domain.QueueMessage, error) {
	var m domain.QueueMessage
	err := row.Scan(&m.ID, &m.QueueName, &m.Payload, &m.AvailableAt, &m.LockedUntil, &m.Attempts, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQueueMessageNotFound
		}
		return nil, fmt.Errorf("scan queue message: %w", err)
	}
	return &m, nil
}
