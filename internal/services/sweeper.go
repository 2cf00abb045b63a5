package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/Ash-Blanc/migru/internal/security"
)

type userSource interface {
	Users(ctx context.Context) ([]string, error)
}

// Sweeper trims expired events and decays window buckets on its own timer.
type Sweeper struct {
	store      *EventStore
	aggregator *WindowAggregator
	users      []userSource
	cfg        AnalyticsConfig
	now        func() time.Time
	logger     *slog.Logger
	tagger     *security.UserTagger

	mu        sync.Mutex
	lastDecay map[models.WindowKind]time.Time
}

type SweepReport struct {
	Users          int
	TrimmedEvents  int64
	DecayedBuckets int64
	DecayedKinds   []models.WindowKind
}

func NewSweeper(store *EventStore, aggregator *WindowAggregator, cfg AnalyticsConfig, logger *slog.Logger, tagger *security.UserTagger, now func() time.Time, users ...userSource) *Sweeper {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:      store,
		aggregator: aggregator,
		users:      users,
		cfg:        cfg,
		now:        now,
		logger:     logger.With("component", "sweeper"),
		tagger:     tagger,
		lastDecay:  make(map[models.WindowKind]time.Time),
	}
}

func (sweeper *Sweeper) Start(ctx context.Context) {
	interval := sweeper.cfg.SweepInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		sweeper.run(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweeper.run(ctx)
			}
		}
	}()
}

func (sweeper *Sweeper) run(ctx context.Context) {
	report := sweeper.Sweep(ctx)
	if report.TrimmedEvents > 0 || report.DecayedBuckets > 0 {
		sweeper.logger.Info("sweep finished",
			"users", report.Users,
			"trimmed_events", report.TrimmedEvents,
			"decayed_buckets", report.DecayedBuckets,
		)
	}
}

// Sweep trims every user's log to the retention horizon and decays the window kinds whose hop elapsed.
func (sweeper *Sweeper) Sweep(ctx context.Context) SweepReport {
	now := sweeper.now().UTC()
	dueKinds := sweeper.dueKinds(now)
	users := sweeper.collectUsers(ctx)

	report := SweepReport{Users: len(users), DecayedKinds: dueKinds}
	retention := sweeper.cfg.Retention()
	for _, userID := range users {
		if ctx.Err() != nil {
			return report
		}

		if retention > 0 {
			trimmed, err := sweeper.store.Trim(ctx, userID, now.Add(-retention))
			if err == nil {
				report.TrimmedEvents += trimmed
			}
		}

		for _, kind := range dueKinds {
			err := sweeper.store.WithUserLock(userID, func() error {
				decayed, err := sweeper.aggregator.Decay(ctx, userID, kind, now)
				report.DecayedBuckets += decayed
				return err
			})
			if err != nil {
				sweeper.logger.Warn("decay failed", "user", sweeper.tagger.Tag(userID), "window", kind, "error", err)
			}
		}
	}

	sweeper.markDecayed(dueKinds, now)
	return report
}

func (sweeper *Sweeper) dueKinds(now time.Time) []models.WindowKind {
	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()

	due := make([]models.WindowKind, 0, len(models.WindowKinds()))
	for _, kind := range models.WindowKinds() {
		last, ran := sweeper.lastDecay[kind]
		if !ran || now.Sub(last) >= sweeper.cfg.Window(kind).Hop {
			due = append(due, kind)
		}
	}
	return due
}

func (sweeper *Sweeper) markDecayed(kinds []models.WindowKind, now time.Time) {
	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()
	for _, kind := range kinds {
		sweeper.lastDecay[kind] = now
	}
}

func (sweeper *Sweeper) collectUsers(ctx context.Context) []string {
	seen := make(map[string]struct{})
	for _, source := range sweeper.users {
		users, err := source.Users(ctx)
		if err != nil {
			sweeper.logger.Warn("list users failed", "error", err)
			continue
		}
		for _, userID := range users {
			seen[userID] = struct{}{}
		}
	}

	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}
