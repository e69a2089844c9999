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

type EquityRepository struct {
	pool *pgxpool.Pool
}

func NewEquityRepository(pool *pgxpool.Pool) *EquityRepository {
	return &EquityRepository{pool: pool}
}

func (r *EquityRepository) Create(ctx context.Context, e *domain.Equity) (*domain.Equity, error) {
	query := `
		INSERT INTO equities (symbol, alt_code, identifier, name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, symbol, alt_code, identifier, name, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query, e.Symbol, e.AltCode, e.Identifier, e.Name)
	created, err := scanEquity(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrEquityDuplicate
		}
		return nil, err
	}
	return created, nil
}

func (r *EquityRepository) GetByID(ctx context.Context, id string) (*domain.Equity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, symbol, alt_code, identifier, name, created_at, updated_at
		FROM equities WHERE id = $1`, id)
	return scanEquity(row)
}

func (r *EquityRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Equity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, symbol, alt_code, identifier, name, created_at, updated_at
		FROM equities WHERE identifier = $1`, identifier)
	return scanEquity(row)
}

func (r *EquityRepository) List(ctx context.Context, limit, offset int) ([]*domain.Equity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, symbol, alt_code, identifier, name, created_at, updated_at
		FROM equities ORDER BY symbol ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list equities: %w", err)
	}
	defer rows.Close()

	var out []*domain.Equity
	for rows.Next() {
		e, err := scanEquity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *EquityRepository) AddToWatchlist(ctx context.Context, equityID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO watchlist_items (equity_id) VALUES ($1)
		ON CONFLICT (equity_id) DO NOTHING`, equityID)
	if err != nil {
		return fmt.Errorf("add to watchlist: %w", err)
	}
	return nil
}

func (r *EquityRepository) RemoveFromWatchlist(ctx context.Context, equityID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM watchlist_items WHERE equity_id = $1`, equityID)
	if err != nil {
		return fmt.Errorf("remove from watchlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotOnWatchlist
	}
	return nil
}

func (r *EquityRepository) ListWatchlist(ctx context.Context) ([]*domain.WatchlistItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT equity_id, added_at FROM watchlist_items ORDER BY added_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var out []*domain.WatchlistItem
	for rows.Next() {
		var w domain.WatchlistItem
		if err := rows.Scan(&w.EquityID, &w.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, nil
}

func scanEquity(row rowScanner) (*domain.Equity, error) {
	var e domain.Equity
	err := row.Scan(&e.ID, &e.Symbol, &e.AltCode, &e.Identifier, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEquityNotFound
		}
		return nil, fmt.Errorf("scan equity: %w", err)
	}
	return &e, nil
}
