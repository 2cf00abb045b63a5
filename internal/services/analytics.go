package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Ash-Blanc/migru/internal/events"
	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/Ash-Blanc/migru/internal/security"
)

type Dependencies struct {
	Log          EventLog
	Buckets      WindowBucketStore
	Correlations CorrelationStore
	Triggers     TriggerStore
	Ledger       LedgerStore
	Renderer     InsightRenderer
	Publisher    Publisher
	Logger       *slog.Logger
	Tagger       *security.UserTagger
	Now          func() time.Time
}

// Analytics is the boundary the conversation pipeline and HTTP layer call.
// Only *models.ValidationError escapes; store failures degrade to empty results.
type Analytics struct {
	cfg         AnalyticsConfig
	store       *EventStore
	aggregator  *WindowAggregator
	correlation *CorrelationEngine
	triggers    *TriggerDetector
	ledger      *InsightLedger
	generator   *InsightGenerator
	sweeper     *Sweeper
	notifier    *notifier
	logger      *slog.Logger
	tagger      *security.UserTagger
	incidents   *incidentLog
	now         func() time.Time
}

type PeakBucket struct {
	Bucket int   `json:"bucket"`
	Count  int64 `json:"count"`
}

func NewAnalytics(cfg AnalyticsConfig, deps Dependencies) *Analytics {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var alertPublisher Publisher
	var notifications *notifier
	if deps.Publisher != nil {
		notifications = newNotifier(deps.Publisher, notificationQueueSize, logger)
		alertPublisher = notifications
	}

	store := NewEventStore(deps.Log, cfg, logger, deps.Tagger, now)
	aggregator := NewWindowAggregator(deps.Buckets, cfg)
	correlation := NewCorrelationEngine(deps.Correlations, cfg)
	triggers := NewTriggerDetector(deps.Triggers, store, cfg, logger, deps.Tagger, now)
	ledger := NewInsightLedger(deps.Ledger, now)

	store.Subscribe("window_aggregator", aggregator)
	store.Subscribe("correlation_engine", correlation)
	store.Subscribe("trigger_detector", triggers)
	store.Subscribe("insight_ledger", ledger)
	store.Subscribe("stress_alerter", NewStressAlerter(alertPublisher, cfg, deps.Tagger))
	store.OnTrim(triggers)

	analyticsLogger := logger.With("component", "analytics")
	return &Analytics{
		cfg:         cfg,
		store:       store,
		aggregator:  aggregator,
		correlation: correlation,
		triggers:    triggers,
		ledger:      ledger,
		generator:   NewInsightGenerator(aggregator, correlation, triggers, ledger, deps.Renderer, cfg, now),
		sweeper:     NewSweeper(store, aggregator, cfg, logger, deps.Tagger, now, store, ledger),
		notifier:    notifications,
		logger:      analyticsLogger,
		tagger:      deps.Tagger,
		incidents:   newIncidentLog(analyticsLogger),
		now:         now,
	}
}

func (analytics *Analytics) Sweeper() *Sweeper {
	return analytics.sweeper
}

// Close delivers queued notifications. The publisher itself is owned by the caller.
func (analytics *Analytics) Close() {
	if analytics.notifier != nil {
		analytics.notifier.Close()
	}
}

// RecordEvent returns a zero id without error when the log could not be written.
func (analytics *Analytics) RecordEvent(ctx context.Context, userID string, input EventInput) (models.EventID, error) {
	id, err := analytics.store.Append(ctx, userID, input)
	if err == nil {
		return id, nil
	}

	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return 0, validationErr
	}
	return 0, nil
}

func (analytics *Analytics) Range(ctx context.Context, userID string, from time.Time, to time.Time) []models.Event {
	found, err := analytics.store.Range(ctx, userID, from, to)
	if err != nil {
		return []models.Event{}
	}
	return found
}

// RecentEvents returns events from the last window, optionally filtered by type.
func (analytics *Analytics) RecentEvents(ctx context.Context, userID string, window time.Duration, eventType models.EventType) []models.Event {
	now := analytics.now().UTC()
	recent := analytics.Range(ctx, userID, now.Add(-window), now.Add(analytics.cfg.MaxIngestSkew+time.Nanosecond))
	if eventType == "" {
		return recent
	}

	filtered := make([]models.Event, 0, len(recent))
	for _, event := range recent {
		if event.Type == eventType {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

func (analytics *Analytics) GetTemporalPatterns(ctx context.Context, userID string) map[models.WindowKind]map[int]int64 {
	return analytics.patterns(ctx, userID, models.EventSymptom)
}

func (analytics *Analytics) GetReliefPatterns(ctx context.Context, userID string) map[models.WindowKind]map[int]int64 {
	return analytics.patterns(ctx, userID, models.EventRelief)
}

func (analytics *Analytics) patterns(ctx context.Context, userID string, series models.EventType) map[models.WindowKind]map[int]int64 {
	patterns := make(map[models.WindowKind]map[int]int64, len(models.WindowKinds()))
	for _, kind := range models.WindowKinds() {
		buckets, err := analytics.aggregator.Buckets(ctx, userID, kind, series)
		if err != nil {
			analytics.incidents.Fail("read_buckets", err)
			buckets = emptyBuckets(kind)
		} else {
			analytics.incidents.Resolve("read_buckets")
		}
		patterns[kind] = buckets
	}
	return patterns
}

func emptyBuckets(kind models.WindowKind) map[int]int64 {
	buckets := make(map[int]int64, kind.BucketCount())
	for key := 0; key < kind.BucketCount(); key++ {
		buckets[key] = 0
	}
	return buckets
}

// Peaks reports the busiest bucket per window kind; kinds without counts are omitted.
func Peaks(patterns map[models.WindowKind]map[int]int64) map[models.WindowKind]PeakBucket {
	peaks := make(map[models.WindowKind]PeakBucket, len(patterns))
	for kind, buckets := range patterns {
		peak := PeakBucket{Bucket: -1}
		for key := 0; key < kind.BucketCount(); key++ {
			if buckets[key] > peak.Count {
				peak = PeakBucket{Bucket: key, Count: buckets[key]}
			}
		}
		if peak.Bucket >= 0 {
			peaks[kind] = peak
		}
	}
	return peaks
}

func (analytics *Analytics) GetEnvironmentalCorrelation(ctx context.Context, userID string) Correlation {
	correlation, err := analytics.correlation.Correlation(ctx, userID)
	if err != nil {
		analytics.incidents.Fail("read_correlation", err)
		return Correlation{}
	}
	analytics.incidents.Resolve("read_correlation")
	return correlation
}

func (analytics *Analytics) GetConfirmedTriggers(ctx context.Context, userID string) []string {
	triggers, err := analytics.triggers.ConfirmedTriggers(ctx, userID)
	if err != nil {
		analytics.incidents.Fail("read_triggers", err)
		return []string{}
	}
	analytics.incidents.Resolve("read_triggers")
	return triggers
}

// RecordConversation stores the caller's conversation count; it never decreases.
func (analytics *Analytics) RecordConversation(ctx context.Context, userID string, conversationCount int) {
	if err := analytics.ledger.RecordConversation(ctx, userID, conversationCount); err != nil {
		analytics.incidents.Fail("record_conversation", err)
		return
	}
	analytics.incidents.Resolve("record_conversation")
}

func (analytics *Analytics) SharingPhase(ctx context.Context, userID string) string {
	snapshot, err := analytics.ledger.Snapshot(ctx, userID)
	if err != nil {
		analytics.incidents.Fail("read_sharing_state", err)
		return models.SharingCold
	}
	analytics.incidents.Resolve("read_sharing_state")
	return snapshot.Phase(analytics.cfg.MinConversationsBeforeFirstInsight)
}

// CheckForInsight never fails; timeouts and store errors mean no insight this cycle.
func (analytics *Analytics) CheckForInsight(ctx context.Context, userID string, conversationCount int, language string) *models.Insight {
	insight, err := analytics.generator.Check(ctx, userID, conversationCount, language)
	switch {
	case errors.Is(err, ErrEvaluationTimeout):
		analytics.logger.Warn("insight evaluation abandoned", "user", analytics.tagger.Tag(userID), "timeout", analytics.cfg.EvaluationTimeout)
		return nil
	case err != nil:
		analytics.incidents.Fail("evaluate", err)
		return nil
	}
	analytics.incidents.Resolve("evaluate")
	return insight
}

// MarkInsightShared rejects malformed ids; marking the same insight again is a no-op.
func (analytics *Analytics) MarkInsightShared(ctx context.Context, userID string, insightID string) error {
	insightID = strings.TrimSpace(insightID)
	if _, ok := InsightKindFromID(insightID); !ok {
		return &models.ValidationError{Field: "insight_id", Reason: "is not a known insight id"}
	}

	now := analytics.now().UTC()
	inserted, err := analytics.ledger.MarkShared(ctx, userID, insightID, now)
	if err != nil {
		analytics.incidents.Fail("mark_shared", err)
		return nil
	}
	analytics.incidents.Resolve("mark_shared")

	if inserted {
		analytics.publishShared(ctx, userID, insightID, now)
	}
	return nil
}

func (analytics *Analytics) WasShared(ctx context.Context, userID string, insightID string) bool {
	shared, err := analytics.ledger.WasShared(ctx, userID, insightID)
	if err != nil {
		analytics.incidents.Fail("was_shared", err)
		return false
	}
	return shared
}

func (analytics *Analytics) publishShared(ctx context.Context, userID string, insightID string, at time.Time) {
	if analytics.notifier == nil {
		return
	}
	kind, _ := InsightKindFromID(insightID)
	payload, err := json.Marshal(map[string]any{
		"type":       events.TypeInsightShared,
		"user_id":    userID,
		"insight_id": insightID,
		"kind":       kind,
		"shared_at":  at,
	})
	if err != nil {
		return
	}
	if err := analytics.notifier.Publish(ctx, events.TypeInsightShared, payload, analytics.tagger.Tag(userID)); err != nil {
		analytics.logger.Warn("publish insight shared failed", "user", analytics.tagger.Tag(userID), "error", err)
	}
}

// Rebuild recomputes the user's aggregates from the retained log.
func (analytics *Analytics) Rebuild(ctx context.Context, userID string) (int, error) {
	replayed, err := analytics.store.Replay(ctx, userID)
	if err != nil {
		return 0, err
	}

	now := analytics.now().UTC()
	for _, kind := range models.WindowKinds() {
		err := analytics.store.WithUserLock(userID, func() error {
			_, err := analytics.aggregator.Decay(ctx, userID, kind, now)
			return err
		})
		if err != nil {
			return replayed, err
		}
	}
	return replayed, nil
}

func (analytics *Analytics) RebuildAll(ctx context.Context) (int, error) {
	users, err := analytics.store.Users(ctx)
	if err != nil {
		return 0, err
	}
	for _, userID := range users {
		if _, err := analytics.Rebuild(ctx, userID); err != nil {
			return 0, err
		}
	}
	return len(users), nil
}

// DeleteUserData removes the log, every aggregate and the sharing state.
func (analytics *Analytics) DeleteUserData(ctx context.Context, userID string) error {
	if err := analytics.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	return analytics.store.WithUserLock(userID, func() error {
		return analytics.ledger.DeleteUser(ctx, userID)
	})
}

func (analytics *Analytics) Users(ctx context.Context) ([]string, error) {
	return analytics.store.Users(ctx)
}

// Trim removes one user's events older than the cutoff.
func (analytics *Analytics) Trim(ctx context.Context, userID string, olderThan time.Time) (int64, error) {
	return analytics.store.Trim(ctx, userID, olderThan)
}

func (analytics *Analytics) Sweep(ctx context.Context) SweepReport {
	return analytics.sweeper.Sweep(ctx)
}
