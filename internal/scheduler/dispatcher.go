package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/clock"
	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/metrics"
	"github.com/earningsdesk/transcript-pipeline/internal/queue"
	"github.com/earningsdesk/transcript-pipeline/internal/repository"
)

const leaseDuration = 30 * time.Second

// Dispatcher turns due FetchScheduleRows into transcript_check messages.
// It never calls the oracle itself — that is the Fetcher pool's job.
type Dispatcher struct {
	scheduleRepo repository.ScheduleRepository
	broker       *queue.Broker
	logger       *slog.Logger
	interval     time.Duration
	batchSize    int
	clock        clock.Clock
}

func NewDispatcher(repo repository.ScheduleRepository, broker *queue.Broker, logger *slog.Logger, interval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		scheduleRepo: repo,
		broker:       broker,
		logger:       logger.With("component", "dispatcher"),
		interval:     interval,
		batchSize:    batchSize,
		clock:        clock.Real{},
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "interval", d.interval)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shut down")
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	now := d.clock.Now()
	rows, err := d.scheduleRepo.ClaimDue(ctx, now, now.Add(leaseDuration), d.batchSize)
	if err != nil {
		d.logger.Error("dispatcher claim due", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	for _, row := range rows {
		payload := domain.TranscriptCheckPayload{
			RowID:    row.ID,
			EquityID: row.EquityID,
			Quarter:  row.Quarter,
			Year:     row.Year,
		}
		if err := d.broker.Publish(ctx, domain.QueueTranscriptCheck, payload); err != nil {
			d.logger.Error("dispatcher publish transcript_check", "row_id", row.ID, "error", err)
			continue
		}
		metrics.ScheduleRowsClaimedTotal.WithLabelValues(strconv.Itoa(row.Priority)).Inc()
	}
	d.logger.Info("dispatcher fired transcript checks", "count", len(rows))
}

// WindowAdvancer inserts new FetchScheduleRows at each UTC midnight when the
// fiscal calendar has advanced, and soft-retires rows whose quarter closed
// out more than the grace window ago.
type WindowAdvancer struct {
	equityRepo   repository.EquityRepository
	groupRepo    repository.GroupRepository
	scheduleRepo repository.ScheduleRepository
	logger       *slog.Logger
	clock        clock.Clock
}

func NewWindowAdvancer(equityRepo repository.EquityRepository, groupRepo repository.GroupRepository, scheduleRepo repository.ScheduleRepository, logger *slog.Logger) *WindowAdvancer {
	return &WindowAdvancer{
		equityRepo:   equityRepo,
		groupRepo:    groupRepo,
		scheduleRepo: scheduleRepo,
		logger:       logger.With("component", "window_advancer"),
		clock:        clock.Real{},
	}
}

// Run materializes the current target (quarter, year) row for every
// watchlisted or grouped equity, then soft-retires rows that have aged out.
// Upsert takes the lowest priority when a row already exists, so a
// watchlist equity that also belongs to a group keeps its priority-10 lane.
func (w *WindowAdvancer) Run(ctx context.Context, now time.Time) error {
	quarter, year := TargetQuarter(now)

	watchlist, err := w.equityRepo.ListWatchlist(ctx)
	if err != nil {
		return err
	}
	for _, item := range watchlist {
		if _, err := w.scheduleRepo.Upsert(ctx, &domain.FetchScheduleRow{
			EquityID:    item.EquityID,
			Quarter:     quarter,
			Year:        year,
			Priority:    domain.PriorityWatchlist,
			NextCheckAt: now,
		}); err != nil {
			w.logger.Error("window advancer upsert watchlist row", "equity_id", item.EquityID, "error", err)
		}
	}

	groups, err := w.groupRepo.List(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if !g.IsActive {
			continue
		}
		members, err := w.groupRepo.ListMembers(ctx, g.ID)
		if err != nil {
			w.logger.Error("window advancer list group members", "group_id", g.ID, "error", err)
			continue
		}
		for _, m := range members {
			if _, err := w.scheduleRepo.Upsert(ctx, &domain.FetchScheduleRow{
				EquityID:    m.EquityID,
				Quarter:     quarter,
				Year:        year,
				Priority:    domain.PriorityGroupOnly,
				NextCheckAt: now,
			}); err != nil {
				w.logger.Error("window advancer upsert group row", "equity_id", m.EquityID, "error", err)
			}
		}
	}

	retired, err := w.scheduleRepo.Retire(ctx, RetirementCutoff(now), 1000)
	if err != nil {
		return err
	}
	if retired > 0 {
		w.logger.Info("window advancer retired stale schedule rows", "count", retired)
	}
	return nil
}

// Start calls Run once immediately and then once per interval, until ctx is
// done.
func (w *WindowAdvancer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := w.Run(ctx, w.clock.Now()); err != nil {
		w.logger.Error("window advancer initial run", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx, w.clock.Now()); err != nil {
				w.logger.Error("window advancer run", "error", err)
			}
		}
	}
}
