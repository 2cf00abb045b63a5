package db

import (
	"context"
	"testing"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
)

func TestEventRepositoryAssignsPerUserSequence(t *testing.T) {
	repo := NewEventRepository(openTestDatabase(t))
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	hour := 9
	pressure := 1004.5
	first, err := repo.Append(ctx, models.Event{
		UserID:     "alice",
		Type:       models.EventSymptom,
		OccurredAt: base,
		Text:       "throbbing headache",
		Metadata:   models.Metadata{Version: models.MetadataVersion, Hour: &hour, Pressure: &pressure},
	})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	second, err := repo.Append(ctx, models.Event{UserID: "alice", Type: models.EventMessage, OccurredAt: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	other, err := repo.Append(ctx, models.Event{UserID: "bob", Type: models.EventMessage, OccurredAt: base})
	if err != nil {
		t.Fatalf("append other: %v", err)
	}

	if first != 1 || second != 2 || other != 1 {
		t.Fatalf("unexpected sequences first=%d second=%d other=%d", first, second, other)
	}

	events, err := repo.Range(ctx, "alice", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	stored := events[0]
	if stored.Seq != first || stored.Text != "throbbing headache" || !stored.OccurredAt.Equal(base) {
		t.Fatalf("unexpected stored event %#v", stored)
	}
	if stored.Metadata.Hour == nil || *stored.Metadata.Hour != 9 {
		t.Fatalf("expected hour metadata to round-trip, got %#v", stored.Metadata)
	}
	if stored.Metadata.Pressure == nil || *stored.Metadata.Pressure != pressure {
		t.Fatalf("expected pressure metadata to round-trip, got %#v", stored.Metadata)
	}
}

func TestEventRepositoryRangeIsHalfOpen(t *testing.T) {
	repo := NewEventRepository(openTestDatabase(t))
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	for offset := 0; offset < 3; offset++ {
		if _, err := repo.Append(ctx, models.Event{UserID: "alice", Type: models.EventActivity, OccurredAt: base.Add(time.Duration(offset) * time.Hour)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := repo.Range(ctx, "alice", base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected events at +0h and +1h only, got %d", len(events))
	}
}

func TestEventRepositoryTrimRemovesOnlyOlderEvents(t *testing.T) {
	repo := NewEventRepository(openTestDatabase(t))
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{base.AddDate(0, 0, -40), base.AddDate(0, 0, -31), base} {
		if _, err := repo.Append(ctx, models.Event{UserID: "alice", Type: models.EventMessage, OccurredAt: at}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	removed, err := repo.Trim(ctx, "alice", base.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 trimmed events, got %d", removed)
	}

	next, err := repo.Append(ctx, models.Event{UserID: "alice", Type: models.EventMessage, OccurredAt: base})
	if err != nil {
		t.Fatalf("append after trim: %v", err)
	}
	if next != 4 {
		t.Fatalf("expected sequence to continue at 4 after trimming older events, got %d", next)
	}
}

func TestWindowBucketRepositoryIncrementAndDecay(t *testing.T) {
	repo := NewWindowBucketRepository(openTestDatabase(t))
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	for index := 0; index < 3; index++ {
		if err := repo.Increment(ctx, "alice", models.WindowHourOfDay, models.EventSymptom, 9, base.Add(time.Duration(index)*time.Minute)); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := repo.Increment(ctx, "alice", models.WindowHourOfDay, models.EventSymptom, 14, base.Add(-8*time.Hour)); err != nil {
		t.Fatalf("increment stale: %v", err)
	}

	buckets, err := repo.List(ctx, "alice", models.WindowHourOfDay, models.EventSymptom)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(buckets) != 2 || buckets[0].BucketKey != 9 || buckets[0].Count != 3 || buckets[1].BucketKey != 14 {
		t.Fatalf("unexpected buckets %#v", buckets)
	}

	removed, err := repo.DeleteTouchedBefore(ctx, "alice", models.WindowHourOfDay, base.Add(-6*time.Hour))
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected stale bucket to be zeroed, removed=%d", removed)
	}
}

func TestTriggerRepositoryCountsOneOccurrencePerOutcomeEvent(t *testing.T) {
	repo := NewTriggerRepository(openTestDatabase(t))
	ctx := context.Background()
	at := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	occurrence := models.TriggerOccurrence{
		UserID:       "alice",
		Outcome:      models.OutcomeSymptom,
		ActivityKind: "morning-rush",
		OutcomeSeq:   5,
		ActivitySeq:  3,
		OccurredAt:   at,
	}
	inserted, err := repo.RecordOccurrence(ctx, occurrence)
	if err != nil || !inserted {
		t.Fatalf("first record: inserted=%v err=%v", inserted, err)
	}
	occurrence.ActivitySeq = 4
	inserted, err = repo.RecordOccurrence(ctx, occurrence)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if inserted {
		t.Fatal("expected a second activity before the same symptom to be ignored")
	}

	count, err := repo.CountOccurrences(ctx, "alice", models.OutcomeSymptom, "morning-rush")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 occurrence, got %d", count)
	}
}

func TestLedgerRepositoryMarkSharedIsIdempotent(t *testing.T) {
	repo := NewLedgerRepository(openTestDatabase(t))
	ctx := context.Background()
	first := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	inserted, err := repo.MarkShared(ctx, models.SharedInsight{UserID: "alice", InsightID: "trigger_discovery:morning-rush", Kind: models.InsightTriggerDiscovery, SharedAt: first})
	if err != nil || !inserted {
		t.Fatalf("first mark: inserted=%v err=%v", inserted, err)
	}
	inserted, err = repo.MarkShared(ctx, models.SharedInsight{UserID: "alice", InsightID: "trigger_discovery:morning-rush", Kind: models.InsightTriggerDiscovery, SharedAt: first.Add(48 * time.Hour)})
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if inserted {
		t.Fatal("expected second mark to be a no-op")
	}

	state, found, err := repo.FindState(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("find state: found=%v err=%v", found, err)
	}
	if state.LastSharedAt == nil || !state.LastSharedAt.Equal(first) {
		t.Fatalf("expected last_shared_at to stay at first share, got %v", state.LastSharedAt)
	}

	count, err := repo.CountSharedSince(ctx, "alice", first.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count shared: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 shared insight, got %d", count)
	}
}

func TestLedgerRepositoryRecordConversationNeverDecreases(t *testing.T) {
	repo := NewLedgerRepository(openTestDatabase(t))
	ctx := context.Background()

	for _, count := range []int{3, 6, 4} {
		if err := repo.RecordConversation(ctx, "alice", count); err != nil {
			t.Fatalf("record %d: %v", count, err)
		}
	}

	state, found, err := repo.FindState(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("find state: found=%v err=%v", found, err)
	}
	if state.ConversationCount != 6 {
		t.Fatalf("expected conversation count 6, got %d", state.ConversationCount)
	}
}

func TestEventRepositorySequenceSurvivesFullTrim(t *testing.T) {
	repo := NewEventRepository(openTestDatabase(t))
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	if _, err := repo.Append(ctx, models.Event{UserID: "alice", Type: models.EventMessage, OccurredAt: base.AddDate(0, 0, -40)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := repo.Trim(ctx, "alice", base.AddDate(0, 0, -30)); err != nil {
		t.Fatalf("trim: %v", err)
	}

	next, err := repo.Append(ctx, models.Event{UserID: "alice", Type: models.EventMessage, OccurredAt: base})
	if err != nil {
		t.Fatalf("append after trim: %v", err)
	}
	if next != 2 {
		t.Fatalf("expected id 2 after the only event was trimmed, got %d", next)
	}
}
