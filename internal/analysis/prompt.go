package analysis

import (
	"context"

	"github.com/earningsdesk/transcript-pipeline/internal/repository"
)

const defaultPrompt = `Summarize this earnings call transcript for an investor audience: key metrics, guidance changes, and notable management commentary.`

// resolvePrompt picks the group's stock_summary_prompt when the equity
// belongs to at least one active group that has set a non-empty one,
// falling back to the package default otherwise. The first non-empty
// prompt found wins — membership in multiple groups with different prompts
// is not disambiguated further.
func resolvePrompt(ctx context.Context, groupRepo repository.GroupRepository, equityID string) (string, error) {
	groups, err := groupRepo.ListGroupsForEquity(ctx, equityID)
	if err != nil {
		return "", err
	}
	for _, g := range groups {
		if g.StockSummaryPrompt != "" {
			return g.StockSummaryPrompt, nil
		}
	}
	return defaultPrompt, nil
}
