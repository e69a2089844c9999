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

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, analysisID string, recipients []string, scheduledAt time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var inserted int
	for _, recipient := range recipients {
		tag, err := tx.Exec(ctx, `
			INSERT INTO outbox_rows (analysis_id, recipient, status, scheduled_at)
			VALUES ($1, $2, 'pending', $3)
			ON CONFLICT (analysis_id, recipient) DO NOTHING`, analysisID, recipient, scheduledAt)
		if err != nil {
			return 0, fmt.Errorf("enqueue outbox row: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

func (r *OutboxRepository) Claim(ctx context.Context, leaseUntil time.Time, limit int) ([]*domain.OutboxRow, error) {
	query := `
		UPDATE outbox_rows
		SET    locked_until = $2, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_rows
			WHERE  status = 'pending' AND scheduled_at <= NOW()
			  AND  retry_next_at <= NOW() AND locked_until < NOW()
			ORDER BY scheduled_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, analysis_id, recipient, status, attempts, scheduled_at, retry_next_at, locked_until, created_at, updated_at`

	rows, err := r.pool.Query(ctx, query, limit, leaseUntil)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	defer rows.Close()

	var out []*domain.OutboxRow
	for rows.Next() {
		o, err := scanOutboxRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_rows SET status = 'sent', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox row sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxRowNotFound
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, retryAt *time.Time, dead bool) error {
	status := "pending"
	if dead {
		status = "dead"
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_rows
		SET    status = $2, attempts = attempts + 1, retry_next_at = COALESCE($3, retry_next_at),
		       locked_until = '-infinity', updated_at = NOW()
		WHERE id = $1`, id, status, retryAt)
	if err != nil {
		return fmt.Errorf("mark outbox row failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxRowNotFound
	}
	return nil
}

func (r *OutboxRepository) ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_rows
		SET    locked_until = '-infinity', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_rows
			WHERE  status = 'pending' AND locked_until >= $1 AND locked_until < NOW()
			ORDER BY locked_until ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("release stale outbox rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *OutboxRepository) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM outbox_rows WHERE status = 'pending' AND scheduled_at <= NOW()`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending outbox rows: %w", err)
	}
	return n, nil
}

func (r *OutboxRepository) ListRecipients(ctx context.Context) ([]*domain.NotificationRecipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, active FROM notification_recipients WHERE active ORDER BY email ASC`)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []*domain.NotificationRecipient
	for rows.Next() {
		var n domain.NotificationRecipient
		if err := rows.Scan(&n.ID, &n.Email, &n.Active); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, nil
}

func scanOutboxRow(row rowScanner) (*domain.OutboxRow, error) {
	var o domain.OutboxRow
	err := row.Scan(&o.ID, &o.AnalysisID, &o.Recipient, &o.Status, &o.Attempts,
		&o.ScheduledAt, &o.RetryNextAt, &o.LockedUntil, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOutboxRowNotFound
		}
		return nil, fmt.Errorf("scan outbox row: %w", err)
	}
	return &o, nil
}
