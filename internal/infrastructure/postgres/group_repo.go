package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func (r *GroupRepository) Create(ctx context.Context, g *domain.Group) (*domain.Group, error) {
	query := `
		INSERT INTO groups (name, deep_research_prompt, stock_summary_prompt, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, deep_research_prompt, stock_summary_prompt, is_active, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query, g.Name, g.DeepResearchPrompt, g.StockSummaryPrompt, g.IsActive)
	created, err := scanGroup(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrGroupNameConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, deep_research_prompt, stock_summary_prompt, is_active, created_at, updated_at
		FROM groups WHERE id = $1`, id)
	return scanGroup(row)
}

func (r *GroupRepository) List(ctx context.Context) ([]*domain.Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, deep_research_prompt, stock_summary_prompt, is_active, created_at, updated_at
		FROM groups ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []*domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *GroupRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE groups SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set group active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepository) AddMember(ctx context.Context, groupID, equityID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO group_memberships (group_id, equity_id) VALUES ($1, $2)
		ON CONFLICT (group_id, equity_id) DO NOTHING`, groupID, equityID)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, equityID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM group_memberships WHERE group_id = $1 AND equity_id = $2`, groupID, equityID)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMembershipNotFound
	}
	return nil
}

func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]*domain.GroupMembership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT group_id, equity_id, added_at, updated_at
		FROM group_memberships WHERE group_id = $1 ORDER BY added_at ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	var out []*domain.GroupMembership
	for rows.Next() {
		var m domain.GroupMembership
		if err := rows.Scan(&m.GroupID, &m.EquityID, &m.AddedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, nil
}

func (r *GroupRepository) ListGroupsForEquity(ctx context.Context, equityID string) ([]*domain.Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.id, g.name, g.deep_research_prompt, g.stock_summary_prompt, g.is_active, g.created_at, g.updated_at
		FROM groups g
		JOIN group_memberships gm ON gm.group_id = g.id
		WHERE gm.equity_id = $1 AND g.is_active`, equityID)
	if err != nil {
		return nil, fmt.Errorf("list groups for equity: %w", err)
	}
	defer rows.Close()

	var out []*domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func scanGroup(row rowScanner) (*domain.Group, error) {
	var g domain.Group
	err := row.Scan(&g.ID, &g.Name, &g.DeepResearchPrompt, &g.StockSummaryPrompt, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	return &g, nil
}
