package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) Upsert(ctx context.Context, row *domain.FetchScheduleRow) (*domain.FetchScheduleRow, error) {
	query := `
		INSERT INTO fetch_schedule_rows (equity_id, quarter, year, priority, next_check_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (equity_id, quarter, year) DO UPDATE SET
			priority = LEAST(fetch_schedule_rows.priority, EXCLUDED.priority),
			updated_at = NOW()
		RETURNING id, equity_id, quarter, year, priority, next_check_at, last_status,
		          last_checked_at, last_available_at, attempts, locked_until, created_at, updated_at`

	r2 := r.pool.QueryRow(ctx, query, row.EquityID, row.Quarter, row.Year, row.Priority, row.NextCheckAt)
	created, err := scanScheduleRow(r2)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("upsert fetch schedule row: %w", err)
		}
		return nil, err
	}
	return created, nil
}

func (r *ScheduleRepository) GetByEquityQuarter(ctx context.Context, equityID string, quarter, year int) (*domain.FetchScheduleRow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, equity_id, quarter, year, priority, next_check_at, last_status,
		       last_checked_at, last_available_at, attempts, locked_until, created_at, updated_at
		FROM fetch_schedule_rows WHERE equity_id = $1 AND quarter = $2 AND year = $3`, equityID, quarter, year)
	return scanScheduleRow(row)
}

// ClaimDue selects claimable rows (priority ASC, next_check_at ASC), leases
// them to leaseUntil, and returns the leased rows. FOR UPDATE SKIP LOCKED
// keeps concurrent scheduler instances from double-dispatching the same row.
func (r *ScheduleRepository) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*domain.FetchScheduleRow, error) {
	query := `
		UPDATE fetch_schedule_rows
		SET    locked_until = $3, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM fetch_schedule_rows
			WHERE  next_check_at <= $1 AND locked_until < $1
			ORDER BY priority ASC, next_check_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, equity_id, quarter, year, priority, next_check_at, last_status,
		          last_checked_at, last_available_at, attempts, locked_until, created_at, updated_at`

	rows, err := r.pool.Query(ctx, query, now, limit, leaseUntil)
	if err != nil {
		return nil, fmt.Errorf("claim due schedule rows: %w", err)
	}
	defer rows.Close()

	var out []*domain.FetchScheduleRow
	for rows.Next() {
		s, err := scanScheduleRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *ScheduleRepository) Advance(ctx context.Context, id string, status domain.TranscriptStatus, nextCheckAt time.Time, availableNow bool) error {
	query := `
		UPDATE fetch_schedule_rows
		SET    last_status       = $2,
		       last_checked_at   = NOW(),
		       last_available_at = CASE WHEN $4 THEN NOW() ELSE last_available_at END,
		       next_check_at     = $3,
		       attempts          = attempts + 1,
		       locked_until      = '-infinity',
		       updated_at        = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status, nextCheckAt, availableNow)
	if err != nil {
		return fmt.Errorf("advance schedule row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleRowNotFound
	}
	return nil
}

// Retire soft-retires rows whose transcript became available more than the
// grace window ago: they stay claimable, just at the lowest priority and a
// slower cadence, since the quarter they cover is long closed out.
func (r *ScheduleRepository) Retire(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE fetch_schedule_rows
		SET    priority      = $3,
		       next_check_at = GREATEST(next_check_at, NOW() + INTERVAL '7 days'),
		       updated_at    = NOW()
		WHERE id IN (
			SELECT id FROM fetch_schedule_rows
			WHERE  priority < $3
			  AND  last_available_at IS NOT NULL
			  AND  last_available_at < $1
			ORDER BY last_available_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, cutoff, limit, domain.PriorityRetired)
	if err != nil {
		return 0, fmt.Errorf("retire stale schedule rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ScheduleRepository) ReleaseStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE fetch_schedule_rows
		SET    locked_until = '-infinity', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM fetch_schedule_rows
			WHERE  locked_until >= $1 AND locked_until < NOW()
			ORDER BY locked_until ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("release stale schedule rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanScheduleRow(row rowScanner) (*domain.FetchScheduleRow, error) {
	var s domain.FetchScheduleRow
	err := row.Scan(
		&s.ID, &s.EquityID, &s.Quarter, &s.Year, &s.Priority, &s.NextCheckAt, &s.LastStatus,
		&s.LastCheckedAt, &s.LastAvailableAt, &s.Attempts, &s.LockedUntil, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleRowNotFound
		}
		return nil, fmt.Errorf("scan schedule row: %w", err)
	}
	return &s, nil
}
