package repository

import (
	"context"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

// EquityRepository depends on interface, not concrete implementation, so the
// usecase layer can be tested against an in-memory fake and swapped onto a
// different store without touching callers.
type EquityRepository interface {
	Create(ctx context.Context, e *domain.Equity) (*domain.Equity, error)
	GetByID(ctx context.Context, id string) (*domain.Equity, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Equity, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Equity, error)

	AddToWatchlist(ctx context.Context, equityID string) error
	RemoveFromWatchlist(ctx context.Context, equityID string) error
	ListWatchlist(ctx context.Context) ([]*domain.WatchlistItem, error)
}
