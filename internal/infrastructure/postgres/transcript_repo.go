package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TranscriptRepository struct {
	pool *pgxpool.Pool
}

func NewTranscriptRepository(pool *pgxpool.Pool) *TranscriptRepository {
	return &TranscriptRepository{pool: pool}
}

func (r *TranscriptRepository) GetByID(ctx context.Context, id string) (*domain.Transcript, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, equity_id, quarter, year, source_url, content_path, status,
		       event_date, analysis_status, analysis_error, created_at, updated_at
		FROM transcripts WHERE id = $1`, id)
	return scanTranscript(row)
}

func (r *TranscriptRepository) GetByEquityQuarter(ctx context.Context, equityID string, quarter, year int) (*domain.Transcript, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, equity_id, quarter, year, source_url, content_path, status,
		       event_date, analysis_status, analysis_error, created_at, updated_at
		FROM transcripts WHERE equity_id = $1 AND quarter = $2 AND year = $3`, equityID, quarter, year)
	return scanTranscript(row)
}

// Upsert writes the latest observed status for the (equity, quarter, year)
// transcript. A write that would move status away from "available" is
// rejected with ErrTranscriptRegression unless allowRegression is set.
func (r *TranscriptRepository) Upsert(ctx context.Context, t *domain.Transcript, allowRegression bool) (*domain.Transcript, error) {
	query := `
		INSERT INTO transcripts (equity_id, quarter, year, source_url, content_path, status, event_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (equity_id, quarter, year) DO UPDATE SET
			source_url  = EXCLUDED.source_url,
			content_path = CASE WHEN EXCLUDED.content_path <> '' THEN EXCLUDED.content_path ELSE transcripts.content_path END,
			status      = CASE
				WHEN transcripts.status = 'available' AND EXCLUDED.status <> 'available' AND NOT $8
					THEN transcripts.status
				ELSE EXCLUDED.status
			END,
			event_date  = COALESCE(EXCLUDED.event_date, transcripts.event_date),
			updated_at  = NOW()
		RETURNING id, equity_id, quarter, year, source_url, content_path, status,
		          event_date, analysis_status, analysis_error, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query,
		t.EquityID, t.Quarter, t.Year, t.SourceURL, t.ContentPath, t.Status, t.EventDate, allowRegression)
	return scanTranscript(row)
}

func (r *TranscriptRepository) AppendEvent(ctx context.Context, ev *domain.TranscriptEvent) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO transcript_events (equity_id, quarter, year, status, source_url, event_date, origin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (equity_id, quarter, year, source_url) WHERE source_url IS NOT NULL DO NOTHING`,
		ev.EquityID, ev.Quarter, ev.Year, ev.Status, nullableString(ev.SourceURL), ev.EventDate, ev.Origin)
	if err != nil {
		return false, fmt.Errorf("append transcript event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TranscriptRepository) SetAnalysisStatus(ctx context.Context, id string, status domain.AnalysisStatus, errMsg *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transcripts SET analysis_status = $2, analysis_error = $3, updated_at = NOW()
		WHERE id = $1`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("set analysis status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTranscriptNotFound
	}
	return nil
}

func (r *TranscriptRepository) SetContentPath(ctx context.Context, id string, contentPath string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transcripts SET content_path = $2, updated_at = NOW() WHERE id = $1`, id, contentPath)
	if err != nil {
		return fmt.Errorf("set content path: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTranscriptNotFound
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanTranscript(row rowScanner) (*domain.Transcript, error) {
	var t domain.Transcript
	err := row.Scan(
		&t.ID, &t.EquityID, &t.Quarter, &t.Year, &t.SourceURL, &t.ContentPath, &t.Status,
		&t.EventDate, &t.AnalysisStatus, &t.AnalysisError, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTranscriptNotFound
		}
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return &t, nil
}
