package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
)

type eventLogStub struct {
	mu        sync.Mutex
	appendErr error
	rangeErr  error
	events    []models.Event
}

func (stub *eventLogStub) Append(_ context.Context, event models.Event) (models.EventID, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.appendErr != nil {
		return 0, stub.appendErr
	}
	event.Seq = models.EventID(len(stub.events) + 1)
	stub.events = append(stub.events, event)
	return event.Seq, nil
}

func (stub *eventLogStub) Range(_ context.Context, userID string, from time.Time, to time.Time) ([]models.Event, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.rangeErr != nil {
		return nil, stub.rangeErr
	}
	result := make([]models.Event, 0)
	for _, event := range stub.events {
		if event.UserID == userID && !event.OccurredAt.Before(from) && event.OccurredAt.Before(to) {
			result = append(result, event)
		}
	}
	return result, nil
}

func (stub *eventLogStub) Trim(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func (stub *eventLogStub) Users(context.Context) ([]string, error) {
	return nil, nil
}

func (stub *eventLogStub) DeleteUser(context.Context, string) error {
	return nil
}

type consumerFunc func(ctx context.Context, event models.Event) error

func (fn consumerFunc) Consume(ctx context.Context, event models.Event) error {
	return fn(ctx, event)
}

func newStoreForTest(log EventLog) *EventStore {
	return NewEventStore(log, DefaultAnalyticsConfig(), discardLogger(), nil, func() time.Time {
		return fixtureNow
	})
}

func TestEventStoreNotifiesConsumersInOrder(t *testing.T) {
	store := newStoreForTest(&eventLogStub{})

	var seen []string
	store.Subscribe("first", consumerFunc(func(_ context.Context, event models.Event) error {
		seen = append(seen, "first:"+event.Text)
		return nil
	}))
	store.Subscribe("second", consumerFunc(func(_ context.Context, event models.Event) error {
		seen = append(seen, "second:"+event.Text)
		return nil
	}))

	for _, text := range []string{"a", "b"} {
		if _, err := store.Append(context.Background(), "alice", EventInput{Type: models.EventMessage, Text: text}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	want := []string{"first:a", "second:a", "first:b", "second:b"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for index := range want {
		if seen[index] != want[index] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func TestEventStoreRecoversFromConsumerFailures(t *testing.T) {
	store := newStoreForTest(&eventLogStub{})

	reached := false
	store.Subscribe("panics", consumerFunc(func(context.Context, models.Event) error {
		panic("boom")
	}))
	store.Subscribe("fails", consumerFunc(func(context.Context, models.Event) error {
		return errors.New("aggregate write failed")
	}))
	store.Subscribe("last", consumerFunc(func(context.Context, models.Event) error {
		reached = true
		return nil
	}))

	id, err := store.Append(context.Background(), "alice", EventInput{Type: models.EventSymptom})
	if err != nil || id != 1 {
		t.Fatalf("expected append to succeed, got id=%d err=%v", id, err)
	}
	if !reached {
		t.Fatal("expected later consumers to run after a failing one")
	}
}

func TestEventStoreStampsClockAndVersion(t *testing.T) {
	log := &eventLogStub{}
	store := newStoreForTest(log)

	if _, err := store.Append(context.Background(), " alice ", EventInput{Type: models.EventRelief}); err != nil {
		t.Fatalf("append: %v", err)
	}
	stored := log.events[0]
	if stored.UserID != "alice" || !stored.OccurredAt.Equal(fixtureNow) || stored.Metadata.Version != models.MetadataVersion {
		t.Fatalf("unexpected stored event %#v", stored)
	}
}

func TestRecordEventDegradesWhenStoreUnavailable(t *testing.T) {
	log := &eventLogStub{appendErr: errors.New("database is locked"), rangeErr: errors.New("database is locked")}
	analytics := NewAnalytics(DefaultAnalyticsConfig(), Dependencies{
		Log:    log,
		Logger: discardLogger(),
		Now: func() time.Time {
			return fixtureNow
		},
	})

	id, err := analytics.RecordEvent(context.Background(), "alice", EventInput{Type: models.EventSymptom})
	if err != nil {
		t.Fatalf("expected store failures to be swallowed, got %v", err)
	}
	if id != 0 {
		t.Fatalf("expected zero id, got %d", id)
	}
	if events := analytics.RecentEvents(context.Background(), "alice", time.Hour, ""); len(events) != 0 {
		t.Fatalf("expected empty range, got %d", len(events))
	}

	if _, err := analytics.RecordEvent(context.Background(), "alice", EventInput{Type: "bogus"}); err == nil {
		t.Fatal("expected validation errors to still surface")
	}
}

func TestIncidentLogOncePerIncident(t *testing.T) {
	var lines int
	handler := &countingHandler{count: &lines}
	incidents := newIncidentLog(slogLoggerWith(handler))

	for index := 0; index < 5; index++ {
		incidents.Fail("append", errors.New("down"))
	}
	incidents.Resolve("append")
	incidents.Resolve("append")
	incidents.Fail("append", errors.New("down again"))

	if lines != 3 {
		t.Fatalf("expected fail, recover and fail lines only, got %d", lines)
	}
}

func TestUserLocksReleaseEntries(t *testing.T) {
	locks := newUserLocks()

	var wg sync.WaitGroup
	counter := 0
	for index := 0; index < 50; index++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("alice")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 serialized increments, got %d", counter)
	}
	if size := locks.size(); size != 0 {
		t.Fatalf("expected lock entries to be released, got %d", size)
	}
}
