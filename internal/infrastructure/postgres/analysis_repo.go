package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

type AnalysisRepository struct {
	pool *pgxpool.Pool
}

func NewAnalysisRepository(pool *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{pool: pool}
}

func (r *AnalysisRepository) CreateJob(ctx context.Context, job *domain.AnalysisJob) (*domain.AnalysisJob, bool, error) {
	query := `
		INSERT INTO analysis_jobs (transcript_id, status, idempotency_key, force, retry_next_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, transcript_id, status, attempts, idempotency_key, force,
		          retry_next_at, locked_until, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query, job.TranscriptID, job.Status, job.IdempotencyKey, job.Force, job.RetryNextAt)
	created, err := scanAnalysisJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := r.getByIdempotencyKey(ctx, job.IdempotencyKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existing, getErr := r.getByIdempotencyKey(ctx, job.IdempotencyKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return created, true, nil
}

func (r *AnalysisRepository) getByIdempotencyKey(ctx context.Context, key string) (*domain.AnalysisJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, transcript_id, status, attempts, idempotency_key, force,
		       retry_next_at, locked_until, created_at, updated_at
		FROM analysis_jobs WHERE idempotency_key = $1`, key)
	return scanAnalysisJob(row)
}

func (r *AnalysisRepository) ClaimJobs(ctx context.Context, leaseUntil time.Time, limit int) ([]*domain.AnalysisJob, error) {
	query := `
		UPDATE analysis_jobs
		SET    status = 'in_progress', locked_until = $2, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM analysis_jobs
			WHERE  status IN ('pending', 'error') AND retry_next_at <= NOW() AND locked_until < NOW()
			ORDER BY retry_next_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, transcript_id, status, attempts, idempotency_key, force,
		          retry_next_at, locked_until, created_at, updated_at`

	rows, err := r.pool.Query(ctx, query, limit, leaseUntil)
	if err != nil {
		return nil, fmt.Errorf("claim analysis jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.AnalysisJob
	for rows.Next() {
		j, err := scanAnalysisJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *AnalysisRepository) CompleteJob(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE analysis_jobs SET status = 'done', updated_at = NOW() WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("complete analysis job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAnalysisJobNotFound
	}
	return nil
}

func (r *AnalysisRepository) FailJob(ctx context.Context, jobID string, retryAt *time.Time, errMsg string) error {
	status := "dead"
	if retryAt != nil {
		status = "error"
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE analysis_jobs
		SET    status = $2, attempts = attempts + 1, retry_next_at = COALESCE($3, retry_next_at),
		       locked_until = '-infinity', updated_at = NOW()
		WHERE id = $1`, jobID, status, retryAt)
	if err != nil {
		return fmt.Errorf("fail analysis job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAnalysisJobNotFound
	}
	_ = errMsg // surfaced via structured logging at the call site, not persisted on the job row
	return nil
}

func (r *AnalysisRepository) ReleaseStaleJobs(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE analysis_jobs
		SET    status = 'error', locked_until = '-infinity', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM analysis_jobs
			WHERE  status = 'in_progress' AND locked_until >= $1 AND locked_until < NOW()
			ORDER BY locked_until ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("release stale analysis jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// TryReserveTranscriptAnalysis is the compare-and-set gate: it flips the
// transcript's analysis_status from none/error to in_progress and reports
// success via the affected-row count, which distinguishes "I won the race"
// from "someone else already holds it".
func (r *AnalysisRepository) TryReserveTranscriptAnalysis(ctx context.Context, transcriptID string, force bool) (bool, error) {
	query := `
		UPDATE transcripts
		SET    analysis_status = 'in_progress', analysis_error = NULL, updated_at = NOW()
		WHERE  id = $1 AND (analysis_status IN ('', 'error') OR $2)
		  AND  analysis_status <> 'in_progress'`
	tag, err := r.pool.Exec(ctx, query, transcriptID, force)
	if err != nil {
		return false, fmt.Errorf("reserve transcript analysis: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, a *domain.TranscriptAnalysis) (*domain.TranscriptAnalysis, error) {
	query := `
		INSERT INTO transcript_analyses (transcript_id, prompt_snapshot, output_text, model_provider, model_id, model_revision, tokens_in, tokens_out, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, transcript_id, prompt_snapshot, output_text, model_provider, model_id, model_revision, tokens_in, tokens_out, cost, created_at`

	row := r.pool.QueryRow(ctx, query, a.TranscriptID, a.PromptSnapshot, a.OutputText,
		a.ModelRef.Provider, a.ModelRef.ModelID, a.ModelRef.Revision, a.TokensIn, a.TokensOut, a.Cost)
	return scanAnalysis(row)
}

func (r *AnalysisRepository) GetAnalysisByTranscript(ctx context.Context, transcriptID string) (*domain.TranscriptAnalysis, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, transcript_id, prompt_snapshot, output_text, model_provider, model_id, model_revision, tokens_in, tokens_out, cost, created_at
		FROM transcript_analyses WHERE transcript_id = $1 ORDER BY created_at DESC LIMIT 1`, transcriptID)
	return scanAnalysis(row)
}

func (r *AnalysisRepository) GetAnalysisByID(ctx context.Context, id string) (*domain.TranscriptAnalysis, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, transcript_id, prompt_snapshot, output_text, model_provider, model_id, model_revision, tokens_in, tokens_out, cost, created_at
		FROM transcript_analyses WHERE id = $1`, id)
	return scanAnalysis(row)
}

func scanAnalysisJob(row rowScanner) (*domain.AnalysisJob, error) {
	var j domain.AnalysisJob
	err := row.Scan(&j.ID, &j.TranscriptID, &j.Status, &j.Attempts, &j.IdempotencyKey, &j.Force,
		&j.RetryNextAt, &j.LockedUntil, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAnalysisJobNotFound
		}
		return nil, fmt.Errorf("scan analysis job: %w", err)
	}
	return &j, nil
}

func scanAnalysis(row rowScanner) (*domain.TranscriptAnalysis, error) {
	var a domain.TranscriptAnalysis
	err := row.Scan(&a.ID, &a.TranscriptID, &a.PromptSnapshot, &a.OutputText,
		&a.ModelRef.Provider, &a.ModelRef.ModelID, &a.ModelRef.Revision, &a.TokensIn, &a.TokensOut, &a.Cost, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("scan transcript analysis: %w", err)
	}
	return &a, nil
}
