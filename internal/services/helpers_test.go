package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Ash-Blanc/migru/internal/db"
	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/Ash-Blanc/migru/internal/security"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now.UTC()}
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *testClock) Advance(step time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(step)
}

type publishedMessage struct {
	eventType string
	payload   string
	key       string
}

type publisherStub struct {
	mu       sync.Mutex
	messages []publishedMessage
}

func (stub *publisherStub) Publish(_ context.Context, eventType string, payload []byte, partitionKey string) error {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.messages = append(stub.messages, publishedMessage{eventType: eventType, payload: string(payload), key: partitionKey})
	return nil
}

func (stub *publisherStub) byType(eventType string) []publishedMessage {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	result := make([]publishedMessage, 0)
	for _, message := range stub.messages {
		if message.eventType == eventType {
			result = append(result, message)
		}
	}
	return result
}

// blockingPublisher holds every Publish call until release is closed.
type blockingPublisher struct {
	release   chan struct{}
	entered   chan struct{}
	delivered publisherStub
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{release: make(chan struct{}), entered: make(chan struct{}, 16)}
}

func (stub *blockingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	select {
	case stub.entered <- struct{}{}:
	default:
	}
	<-stub.release
	return stub.delivered.Publish(ctx, eventType, payload, partitionKey)
}

type rendererStub struct{}

func (rendererStub) Render(language string, insight models.Insight) string {
	return language + ":" + insight.ID
}

type analyticsFixture struct {
	analytics *Analytics
	clock     *testClock
	publisher *publisherStub
	repos     *db.Repositories
}

// fixtureNow is a Friday; the fixture's retention and windows are the defaults.
var fixtureNow = time.Date(2026, time.March, 6, 12, 0, 0, 0, time.UTC)

func testAnalyticsConfig() AnalyticsConfig {
	cfg := DefaultAnalyticsConfig()
	cfg.EvaluationTimeout = 2 * time.Second
	return cfg
}

func newAnalyticsFixture(t *testing.T, cfg AnalyticsConfig) *analyticsFixture {
	t.Helper()

	publisher := &publisherStub{}
	fixture := newAnalyticsFixtureWithPublisher(t, cfg, publisher)
	fixture.publisher = publisher
	return fixture
}

func newAnalyticsFixtureWithPublisher(t *testing.T, cfg AnalyticsConfig, publisher Publisher) *analyticsFixture {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "migru-services.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close(database)
	})

	repos := db.NewRepositories(database)
	clock := newTestClock(fixtureNow)
	analytics := NewAnalytics(cfg, Dependencies{
		Log:          repos.Events,
		Buckets:      repos.Buckets,
		Correlations: repos.Correlations,
		Triggers:     repos.Triggers,
		Ledger:       repos.Ledger,
		Renderer:     rendererStub{},
		Publisher:    publisher,
		Logger:       discardLogger(),
		Tagger:       security.NewUserTagger("test-tag-key-with-enough-length-0000"),
		Now:          clock.Now,
	})
	t.Cleanup(analytics.Close)
	return &analyticsFixture{analytics: analytics, clock: clock, repos: repos}
}

// published waits for queued notifications before reading what the stub received.
func (fixture *analyticsFixture) published(eventType string) []publishedMessage {
	fixture.analytics.notifier.flush()
	return fixture.publisher.byType(eventType)
}

func (fixture *analyticsFixture) record(t *testing.T, userID string, eventType models.EventType, text string, metadata models.Metadata, at time.Time) models.EventID {
	t.Helper()

	id, err := fixture.analytics.RecordEvent(context.Background(), userID, EventInput{
		Type:       eventType,
		Text:       text,
		Metadata:   metadata,
		OccurredAt: &at,
	})
	if err != nil {
		t.Fatalf("record %s event: %v", eventType, err)
	}
	if id == 0 {
		t.Fatalf("expected %s event to be persisted", eventType)
	}
	return id
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intValue(value int) *int {
	return &value
}

func floatValue(value float64) *float64 {
	return &value
}
