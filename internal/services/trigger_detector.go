package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/Ash-Blanc/migru/internal/security"
)

type TriggerStore interface {
	RecordOccurrence(ctx context.Context, occurrence models.TriggerOccurrence) (bool, error)
	RecordObservation(ctx context.Context, observation models.OutcomeObservation) (bool, error)
	CountOccurrences(ctx context.Context, userID string, outcome models.Outcome, activityKind string) (int64, error)
	CountObservations(ctx context.Context, userID string, outcome models.Outcome) (int64, error)
	FindCandidate(ctx context.Context, userID string, outcome models.Outcome, activityKind string) (models.TriggerCandidate, bool, error)
	SaveCandidate(ctx context.Context, candidate models.TriggerCandidate) error
	DeleteCandidate(ctx context.Context, userID string, outcome models.Outcome, activityKind string) error
	ListCandidates(ctx context.Context, userID string, outcome models.Outcome) ([]models.TriggerCandidate, error)
	TrimBefore(ctx context.Context, userID string, cutoff time.Time) error
	DeleteUser(ctx context.Context, userID string) error
}

type EventReader interface {
	Range(ctx context.Context, userID string, from time.Time, to time.Time) ([]models.Event, error)
}

// TriggerDetector joins Activity events to the Symptom or Relief events that follow them within the lookback.
type TriggerDetector struct {
	triggers TriggerStore
	events   EventReader
	cfg      AnalyticsConfig
	now      func() time.Time
	logger   *slog.Logger
	tagger   *security.UserTagger
}

func NewTriggerDetector(triggers TriggerStore, events EventReader, cfg AnalyticsConfig, logger *slog.Logger, tagger *security.UserTagger, now func() time.Time) *TriggerDetector {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerDetector{
		triggers: triggers,
		events:   events,
		cfg:      cfg,
		now:      now,
		logger:   logger.With("component", "trigger_detector"),
		tagger:   tagger,
	}
}

func (detector *TriggerDetector) Consume(ctx context.Context, event models.Event) error {
	if outcome, ok := models.OutcomeFor(event.Type); ok {
		return detector.consumeOutcome(ctx, event, outcome)
	}
	if event.Type == models.EventActivity {
		return detector.consumeActivity(ctx, event)
	}
	return nil
}

func (detector *TriggerDetector) consumeOutcome(ctx context.Context, event models.Event, outcome models.Outcome) error {
	if _, err := detector.triggers.RecordObservation(ctx, models.OutcomeObservation{
		UserID:     event.UserID,
		Outcome:    outcome,
		OutcomeSeq: event.Seq,
		OccurredAt: event.OccurredAt,
	}); err != nil {
		return fmt.Errorf("record observation: %w", err)
	}

	lookback := detector.cfg.TriggerLookbackWindow
	preceding, err := detector.events.Range(ctx, event.UserID, event.OccurredAt.Add(-lookback), event.OccurredAt)
	if err != nil {
		return fmt.Errorf("scan lookback window: %w", err)
	}

	latestByKind := make(map[string]models.Event)
	for _, candidate := range preceding {
		if candidate.Type != models.EventActivity || !candidate.OccurredAt.Before(event.OccurredAt) {
			continue
		}
		kind := candidate.ActivityKind()
		if kind == "" {
			continue
		}
		latestByKind[kind] = candidate
	}

	for _, kind := range sortedKeys(latestByKind) {
		if err := detector.recordOccurrence(ctx, event, outcome, kind, latestByKind[kind].Seq); err != nil {
			return err
		}
	}
	return nil
}

// consumeActivity handles activities that arrive after the outcome they preceded.
func (detector *TriggerDetector) consumeActivity(ctx context.Context, activity models.Event) error {
	kind := activity.ActivityKind()
	if kind == "" {
		return nil
	}

	lookback := detector.cfg.TriggerLookbackWindow
	windowEnd := activity.OccurredAt.Add(lookback)
	following, err := detector.events.Range(ctx, activity.UserID, activity.OccurredAt, windowEnd.Add(time.Nanosecond))
	if err != nil {
		return fmt.Errorf("scan forward window: %w", err)
	}

	for _, event := range following {
		outcome, ok := models.OutcomeFor(event.Type)
		if !ok || !event.OccurredAt.After(activity.OccurredAt) || event.OccurredAt.After(windowEnd) {
			continue
		}
		if err := detector.recordOccurrence(ctx, event, outcome, kind, activity.Seq); err != nil {
			return err
		}
	}
	return nil
}

func (detector *TriggerDetector) recordOccurrence(ctx context.Context, outcomeEvent models.Event, outcome models.Outcome, kind string, activitySeq models.EventID) error {
	inserted, err := detector.triggers.RecordOccurrence(ctx, models.TriggerOccurrence{
		UserID:       outcomeEvent.UserID,
		Outcome:      outcome,
		ActivityKind: kind,
		OutcomeSeq:   outcomeEvent.Seq,
		ActivitySeq:  activitySeq,
		OccurredAt:   outcomeEvent.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("record occurrence: %w", err)
	}
	if !inserted {
		return nil
	}
	return detector.refreshCandidate(ctx, outcomeEvent.UserID, outcome, kind, outcomeEvent.OccurredAt)
}

// refreshCandidate recounts retained occurrences and re-derives confirmation from that count,
// so trimming and replay agree.
func (detector *TriggerDetector) refreshCandidate(ctx context.Context, userID string, outcome models.Outcome, kind string, seenAt time.Time) error {
	count, err := detector.triggers.CountOccurrences(ctx, userID, outcome, kind)
	if err != nil {
		return fmt.Errorf("count occurrences: %w", err)
	}
	candidate, found, err := detector.triggers.FindCandidate(ctx, userID, outcome, kind)
	if err != nil {
		return fmt.Errorf("load candidate: %w", err)
	}

	if count == 0 {
		if !found {
			return nil
		}
		return detector.triggers.DeleteCandidate(ctx, userID, outcome, kind)
	}

	if !found {
		candidate = models.TriggerCandidate{UserID: userID, Outcome: outcome, ActivityKind: kind}
	}
	candidate.LookbackWindow = detector.cfg.TriggerLookbackWindow
	candidate.Occurrences = count
	if seenAt.After(candidate.LastSeenAt) {
		candidate.LastSeenAt = seenAt.UTC()
	}
	confirmed := count >= int64(detector.cfg.TriggerConfirmationCount)
	switch {
	case confirmed && !candidate.Confirmed:
		confirmedAt := detector.now().UTC()
		candidate.Confirmed = true
		candidate.ConfirmedAt = &confirmedAt
		detector.logger.Info("trigger confirmed",
			"user", detector.tagger.Tag(userID),
			"outcome", outcome,
			"activity_kind", kind,
			"occurrences", count,
		)
	case !confirmed && candidate.Confirmed:
		candidate.Confirmed = false
		candidate.ConfirmedAt = nil
		detector.logger.Info("trigger confirmation withdrawn",
			"user", detector.tagger.Tag(userID),
			"outcome", outcome,
			"activity_kind", kind,
			"occurrences", count,
		)
	}
	return detector.triggers.SaveCandidate(ctx, candidate)
}

func (detector *TriggerDetector) TrimmedBefore(ctx context.Context, userID string, cutoff time.Time) error {
	if err := detector.triggers.TrimBefore(ctx, userID, cutoff); err != nil {
		return fmt.Errorf("trim occurrences: %w", err)
	}
	for _, outcome := range []models.Outcome{models.OutcomeSymptom, models.OutcomeRelief} {
		candidates, err := detector.triggers.ListCandidates(ctx, userID, outcome)
		if err != nil {
			return fmt.Errorf("list candidates: %w", err)
		}
		for _, candidate := range candidates {
			if err := detector.refreshCandidate(ctx, userID, outcome, candidate.ActivityKind, candidate.LastSeenAt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (detector *TriggerDetector) Candidates(ctx context.Context, userID string, outcome models.Outcome) ([]models.TriggerCandidate, error) {
	return detector.triggers.ListCandidates(ctx, userID, outcome)
}

func (detector *TriggerDetector) OutcomesEvaluated(ctx context.Context, userID string, outcome models.Outcome) (int64, error) {
	return detector.triggers.CountObservations(ctx, userID, outcome)
}

func (detector *TriggerDetector) ConfirmedTriggers(ctx context.Context, userID string) ([]string, error) {
	candidates, err := detector.triggers.ListCandidates(ctx, userID, models.OutcomeSymptom)
	if err != nil {
		return nil, err
	}

	kinds := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Confirmed {
			kinds = append(kinds, candidate.ActivityKind)
		}
	}
	sort.Strings(kinds)
	return kinds, nil
}

func (detector *TriggerDetector) Reset(ctx context.Context, userID string) error {
	return detector.triggers.DeleteUser(ctx, userID)
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
