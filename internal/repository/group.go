package repository

import (
	"context"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

type GroupRepository interface {
	Create(ctx context.Context, g *domain.Group) (*domain.Group, error)
	GetByID(ctx context.Context, id string) (*domain.Group, error)
	List(ctx context.Context) ([]*domain.Group, error)
	SetActive(ctx context.Context, id string, active bool) error

	AddMember(ctx context.Context, groupID, equityID string) error
	RemoveMember(ctx context.Context, groupID, equityID string) error
	ListMembers(ctx context.Context, groupID string) ([]*domain.GroupMembership, error)

	// ListGroupsForEquity returns every active group the equity belongs to,
	// used by the research coordinator to fan out a readiness check after
	// each analysis completes.
	ListGroupsForEquity(ctx context.Context, equityID string) ([]*domain.Group, error)
}
