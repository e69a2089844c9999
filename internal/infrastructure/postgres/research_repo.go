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

type ResearchRepository struct {
	pool *pgxpool.Pool
}

func NewResearchRepository(pool *pgxpool.Pool) *ResearchRepository {
	return &ResearchRepository{pool: pool}
}

func (r *ResearchRepository) GetOrCreate(ctx context.Context, groupID string, quarter, year int, promptSnapshot string) (*domain.GroupResearchRun, bool, error) {
	query := `
		INSERT INTO group_research_runs (group_id, quarter, year, status, prompt_snapshot)
		VALUES ($1, $2, $3, 'pending', $4)
		ON CONFLICT (group_id, quarter, year) DO NOTHING
		RETURNING id, group_id, quarter, year, status, prompt_snapshot, output_text,
		          model_provider, model_id, model_revision, error_message, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query, groupID, quarter, year, promptSnapshot)
	created, err := scanResearchRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := r.getByKey(ctx, groupID, quarter, year)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existing, getErr := r.getByKey(ctx, groupID, quarter, year)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return created, true, nil
}

func (r *ResearchRepository) getByKey(ctx context.Context, groupID string, quarter, year int) (*domain.GroupResearchRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, group_id, quarter, year, status, prompt_snapshot, output_text,
		       model_provider, model_id, model_revision, error_message, created_at, updated_at
		FROM group_research_runs WHERE group_id = $1 AND quarter = $2 AND year = $3`, groupID, quarter, year)
	return scanResearchRun(row)
}

func (r *ResearchRepository) GetByID(ctx context.Context, id string) (*domain.GroupResearchRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, group_id, quarter, year, status, prompt_snapshot, output_text,
		       model_provider, model_id, model_revision, error_message, created_at, updated_at
		FROM group_research_runs WHERE id = $1`, id)
	return scanResearchRun(row)
}

// IsReady runs the single fan-in join: every active member of the group must
// have a done transcript analysis for (quarter, year), with no member left
// over that is still missing one.
func (r *ResearchRepository) IsReady(ctx context.Context, groupID string, quarter, year int) (bool, error) {
	query := `
		SELECT NOT EXISTS (
			SELECT 1
			FROM group_memberships gm
			LEFT JOIN transcripts t ON t.equity_id = gm.equity_id AND t.quarter = $2 AND t.year = $3
			LEFT JOIN transcript_analyses ta ON ta.transcript_id = t.id
			WHERE gm.group_id = $1
			  AND (t.id IS NULL OR t.analysis_status <> 'done' OR ta.id IS NULL)
		) AND EXISTS (
			SELECT 1 FROM group_memberships WHERE group_id = $1
		)`
	var ready bool
	if err := r.pool.QueryRow(ctx, query, groupID, quarter, year).Scan(&ready); err != nil {
		return false, fmt.Errorf("check research readiness: %w", err)
	}
	return ready, nil
}

// TryReserve mirrors TryReserveTranscriptAnalysis for the group fan-in path:
// it flips pending (or, under force, any non-in-progress state) to
// in_progress and reports the win via the affected-row count.
func (r *ResearchRepository) TryReserve(ctx context.Context, id string, force bool) (bool, error) {
	query := `
		UPDATE group_research_runs
		SET    status = 'in_progress', error_message = NULL, updated_at = NOW()
		WHERE  id = $1 AND status <> 'in_progress' AND (status = 'pending' OR $2)`
	tag, err := r.pool.Exec(ctx, query, id, force)
	if err != nil {
		return false, fmt.Errorf("reserve research run: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ResearchRepository) Complete(ctx context.Context, id string, outputText string, modelRef domain.ModelRef) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE group_research_runs
		SET    status = 'done', output_text = $2, model_provider = $3, model_id = $4, model_revision = $5, updated_at = NOW()
		WHERE id = $1`, id, outputText, modelRef.Provider, modelRef.ModelID, modelRef.Revision)
	if err != nil {
		return fmt.Errorf("complete research run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResearchRunNotFound
	}
	return nil
}

func (r *ResearchRepository) Fail(ctx context.Context, id string, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE group_research_runs SET status = 'error', error_message = $2, updated_at = NOW() WHERE id = $1`,
		id, errMsg)
	if err != nil {
		return fmt.Errorf("fail research run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResearchRunNotFound
	}
	return nil
}

func (r *ResearchRepository) ClaimStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE group_research_runs
		SET    status = 'error', error_message = 'worker timeout', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM group_research_runs
			WHERE  status = 'in_progress' AND updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("claim stale research runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanResearchRun(row rowScanner) (*domain.GroupResearchRun, error) {
	var g domain.GroupResearchRun
	err := row.Scan(&g.ID, &g.GroupID, &g.Quarter, &g.Year, &g.Status, &g.PromptSnapshot, &g.OutputText,
		&g.ModelRef.Provider, &g.ModelRef.ModelID, &g.ModelRef.Revision, &g.ErrorMessage, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrResearchRunNotFound
		}
		return nil, fmt.Errorf("scan group research run: %w", err)
	}
	return &g, nil
}
