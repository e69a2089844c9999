package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

type fakePromptGroupRepo struct {
	groups []*domain.Group
	err    error
}

func (r *fakePromptGroupRepo) Create(_ context.Context, g *domain.Group) (*domain.Group, error) { return g, nil }
func (r *fakePromptGroupRepo) GetByID(_ context.Context, _ string) (*domain.Group, error)       { return nil, nil }
func (r *fakePromptGroupRepo) List(_ context.Context) ([]*domain.Group, error)                  { return nil, nil }
func (r *fakePromptGroupRepo) SetActive(_ context.Context, _ string, _ bool) error              { return nil }
func (r *fakePromptGroupRepo) AddMember(_ context.Context, _, _ string) error                   { return nil }
func (r *fakePromptGroupRepo) RemoveMember(_ context.Context, _, _ string) error                { return nil }
func (r *fakePromptGroupRepo) ListMembers(_ context.Context, _ string) ([]*domain.GroupMembership, error) {
	return nil, nil
}
func (r *fakePromptGroupRepo) ListGroupsForEquity(_ context.Context, _ string) ([]*domain.Group, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.groups, nil
}

func TestResolvePrompt_NoGroups_ReturnsDefault(t *testing.T) {
	repo := &fakePromptGroupRepo{}
	got, err := resolvePrompt(context.Background(), repo, "eq-1")
	if err != nil {
		t.Fatalf("resolvePrompt: %v", err)
	}
	if got != defaultPrompt {
		t.Errorf("got %q, want default prompt", got)
	}
}

func TestResolvePrompt_GroupWithCustomPrompt_Wins(t *testing.T) {
	repo := &fakePromptGroupRepo{groups: []*domain.Group{
		{ID: "g-1", StockSummaryPrompt: ""},
		{ID: "g-2", StockSummaryPrompt: "focus on margin trends"},
	}}
	got, err := resolvePrompt(context.Background(), repo, "eq-1")
	if err != nil {
		t.Fatalf("resolvePrompt: %v", err)
	}
	if got != "focus on margin trends" {
		t.Errorf("got %q, want the custom prompt", got)
	}
}

func TestResolvePrompt_RepoError_Propagates(t *testing.T) {
	repo := &fakePromptGroupRepo{err: errRepoUnavailable}
	_, err := resolvePrompt(context.Background(), repo, "eq-1")
	if err != errRepoUnavailable {
		t.Fatalf("got err %v, want errRepoUnavailable", err)
	}
}

var errRepoUnavailable = errors.New("repo unavailable")
