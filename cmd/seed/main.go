// seed inserts a handful of equities, a watchlist, and one group into the
// local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/infrastructure/postgres"
)

type equitySpec struct {
	symbol     string
	identifier string
	name       string
	watchlist  bool
}

var equities = []equitySpec{
	{"AAPL", "us-aapl", "Apple Inc.", true},
	{"MSFT", "us-msft", "Microsoft Corp.", true},
	{"GOOGL", "us-googl", "Alphabet Inc.", false},
	{"AMZN", "us-amzn", "Amazon.com Inc.", false},
	{"META", "us-meta", "Meta Platforms Inc.", false},
}

const megacapGroupName = "Megacap Tech"

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	equityRepo := postgres.NewEquityRepository(pool)
	groupRepo := postgres.NewGroupRepository(pool)

	var ids []string
	var created, skipped, watchlisted int

	for _, spec := range equities {
		e, err := equityRepo.Create(ctx, &domain.Equity{
			Symbol:     spec.symbol,
			Identifier: spec.identifier,
			Name:       spec.name,
		})
		switch {
		case errors.Is(err, domain.ErrEquityDuplicate):
			e, err = equityRepo.GetByIdentifier(ctx, spec.identifier)
			if err != nil {
				log.Fatalf("load existing equity %s: %v", spec.symbol, err)
			}
			skipped++
		case err != nil:
			log.Fatalf("create equity %s: %v", spec.symbol, err)
		default:
			created++
		}
		ids = append(ids, e.ID)

		if spec.watchlist {
			if err := equityRepo.AddToWatchlist(ctx, e.ID); err != nil && !errors.Is(err, domain.ErrAlreadyWatchlisted) {
				log.Fatalf("watchlist equity %s: %v", spec.symbol, err)
			}
			watchlisted++
		}
	}

	group, err := groupRepo.Create(ctx, &domain.Group{
		Name:               megacapGroupName,
		DeepResearchPrompt: "Write a comparative research note on these megacap technology companies' latest quarterly earnings.",
		StockSummaryPrompt: "Summarize this earnings call transcript for a megacap technology equity.",
		IsActive:           true,
	})
	if errors.Is(err, domain.ErrGroupNameConflict) {
		groups, listErr := groupRepo.List(ctx)
		if listErr != nil {
			log.Fatalf("list groups: %v", listErr)
		}
		for _, g := range groups {
			if g.Name == megacapGroupName {
				group = g
				break
			}
		}
	} else if err != nil {
		log.Fatalf("create group: %v", err)
	}

	for _, id := range ids {
		if err := groupRepo.AddMember(ctx, group.ID, id); err != nil {
			log.Fatalf("add group member: %v", err)
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Equities created: %d  (skipped %d already existing)\n", created, skipped)
	fmt.Printf("  Watchlisted:      %d\n", watchlisted)
	fmt.Printf("  Group:            %s (%s), %d members\n", group.Name, group.ID, len(ids))
	fmt.Println()
	fmt.Println("Run cmd/scheduler to start materializing fetch_schedule_rows for these equities.")
}
