package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/Ash-Blanc/migru/internal/security"
)

const (
	maxUserIDLength    = 128
	maxEventTextLength = 4000
)

type EventLog interface {
	Append(ctx context.Context, event models.Event) (models.EventID, error)
	Range(ctx context.Context, userID string, from time.Time, to time.Time) ([]models.Event, error)
	Trim(ctx context.Context, userID string, olderThan time.Time) (int64, error)
	Users(ctx context.Context) ([]string, error)
	DeleteUser(ctx context.Context, userID string) error
}

// EventConsumer is notified of every appended event, in append order per user.
type EventConsumer interface {
	Consume(ctx context.Context, event models.Event) error
}

// Replayable consumers derive state only from the log and can be rebuilt from it.
type Replayable interface {
	EventConsumer
	Reset(ctx context.Context, userID string) error
}

// TrimListener drops derived state that referenced trimmed events.
type TrimListener interface {
	TrimmedBefore(ctx context.Context, userID string, cutoff time.Time) error
}

type EventInput struct {
	Type       models.EventType
	Text       string
	Metadata   models.Metadata
	OccurredAt *time.Time
}

type namedConsumer struct {
	name     string
	consumer EventConsumer
}

type EventStore struct {
	log       EventLog
	locks     *userLocks
	consumers []namedConsumer
	listeners []TrimListener
	retention time.Duration
	maxSkew   time.Duration
	now       func() time.Time
	logger    *slog.Logger
	tagger    *security.UserTagger
	incidents *incidentLog
}

func NewEventStore(log EventLog, cfg AnalyticsConfig, logger *slog.Logger, tagger *security.UserTagger, now func() time.Time) *EventStore {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "event_store")
	return &EventStore{
		log:       log,
		locks:     newUserLocks(),
		retention: cfg.Retention(),
		maxSkew:   cfg.MaxIngestSkew,
		now:       now,
		logger:    logger,
		tagger:    tagger,
		incidents: newIncidentLog(logger),
	}
}

func (store *EventStore) Subscribe(name string, consumer EventConsumer) {
	store.consumers = append(store.consumers, namedConsumer{name: name, consumer: consumer})
}

func (store *EventStore) OnTrim(listener TrimListener) {
	store.listeners = append(store.listeners, listener)
}

// Append validates, persists and fans the event out to consumers under the user's lock.
// A log failure returns ErrStoreUnavailable and an id of zero.
func (store *EventStore) Append(ctx context.Context, userID string, input EventInput) (models.EventID, error) {
	event, err := store.buildEvent(userID, input)
	if err != nil {
		return 0, err
	}

	unlock := store.locks.Lock(event.UserID)
	defer unlock()

	id, err := store.log.Append(ctx, event)
	if err != nil {
		store.incidents.Fail("append", err)
		return 0, storeUnavailable("append event", err)
	}
	store.incidents.Resolve("append")

	event.Seq = id
	store.notify(ctx, store.consumers, event)
	return id, nil
}

func (store *EventStore) buildEvent(userID string, input EventInput) (models.Event, error) {
	if userID == "" || len(userID) > maxUserIDLength {
		return models.Event{}, &models.ValidationError{Field: "user_id", Reason: fmt.Sprintf("must be 1-%d characters", maxUserIDLength)}
	}
	// Ids are keys as given; the auth layer is the only place that normalizes them.
	if userID != strings.TrimSpace(userID) {
		return models.Event{}, &models.ValidationError{Field: "user_id", Reason: "must not have surrounding whitespace"}
	}
	if !input.Type.Valid() {
		return models.Event{}, &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown event type %q", input.Type)}
	}
	if len(input.Text) > maxEventTextLength {
		return models.Event{}, &models.ValidationError{Field: "text", Reason: fmt.Sprintf("must be at most %d bytes", maxEventTextLength)}
	}
	if err := input.Metadata.Validate(); err != nil {
		return models.Event{}, err
	}

	now := store.now().UTC()
	occurredAt := now
	if input.OccurredAt != nil {
		occurredAt = input.OccurredAt.UTC()
		if occurredAt.After(now.Add(store.maxSkew)) {
			return models.Event{}, &models.ValidationError{Field: "occurred_at", Reason: "is in the future"}
		}
		if store.retention > 0 && occurredAt.Before(now.Add(-store.retention)) {
			return models.Event{}, &models.ValidationError{Field: "occurred_at", Reason: "is past the retention horizon"}
		}
	}

	metadata := input.Metadata
	metadata.Version = models.MetadataVersion
	return models.Event{
		UserID:     userID,
		Type:       input.Type,
		OccurredAt: occurredAt,
		Text:       input.Text,
		Metadata:   metadata,
	}, nil
}

func (store *EventStore) notify(ctx context.Context, consumers []namedConsumer, event models.Event) {
	for _, entry := range consumers {
		store.consumeSafely(ctx, entry, event)
	}
}

func (store *EventStore) consumeSafely(ctx context.Context, entry namedConsumer, event models.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			store.logger.Error("consumer panicked",
				"consumer", entry.name,
				"user", store.tagger.Tag(event.UserID),
				"event_id", event.Seq,
				"panic", fmt.Sprint(recovered),
			)
		}
	}()

	if err := entry.consumer.Consume(ctx, event); err != nil {
		store.logger.Warn("consumer failed",
			"consumer", entry.name,
			"user", store.tagger.Tag(event.UserID),
			"event_id", event.Seq,
			"error", err,
		)
	}
}

func (store *EventStore) Range(ctx context.Context, userID string, from time.Time, to time.Time) ([]models.Event, error) {
	events, err := store.log.Range(ctx, userID, from, to)
	if err != nil {
		store.incidents.Fail("range", err)
		return nil, storeUnavailable("range events", err)
	}
	store.incidents.Resolve("range")
	return events, nil
}

// Trim removes events older than olderThan and lets listeners drop state joined to them.
func (store *EventStore) Trim(ctx context.Context, userID string, olderThan time.Time) (int64, error) {
	unlock := store.locks.Lock(userID)
	defer unlock()

	removed, err := store.log.Trim(ctx, userID, olderThan)
	if err != nil {
		store.incidents.Fail("trim", err)
		return 0, storeUnavailable("trim events", err)
	}
	store.incidents.Resolve("trim")

	for _, listener := range store.listeners {
		if err := listener.TrimmedBefore(ctx, userID, olderThan); err != nil {
			store.logger.Warn("trim listener failed", "user", store.tagger.Tag(userID), "error", err)
		}
	}
	return removed, nil
}

func (store *EventStore) Users(ctx context.Context) ([]string, error) {
	users, err := store.log.Users(ctx)
	if err != nil {
		store.incidents.Fail("users", err)
		return nil, storeUnavailable("list users", err)
	}
	store.incidents.Resolve("users")
	return users, nil
}

// Replay resets every replayable consumer for the user and feeds it the retained log.
func (store *EventStore) Replay(ctx context.Context, userID string) (int, error) {
	unlock := store.locks.Lock(userID)
	defer unlock()

	replayable := make([]namedConsumer, 0, len(store.consumers))
	for _, entry := range store.consumers {
		consumer, ok := entry.consumer.(Replayable)
		if !ok {
			continue
		}
		if err := consumer.Reset(ctx, userID); err != nil {
			return 0, fmt.Errorf("reset %s: %w", entry.name, err)
		}
		replayable = append(replayable, entry)
	}

	now := store.now().UTC()
	events, err := store.log.Range(ctx, userID, now.Add(-store.retention), now.Add(store.maxSkew+time.Nanosecond))
	if err != nil {
		return 0, storeUnavailable("replay events", err)
	}
	for _, event := range events {
		store.notify(ctx, replayable, event)
	}
	return len(events), nil
}

// DeleteUser removes the user's log and every replayable aggregate.
func (store *EventStore) DeleteUser(ctx context.Context, userID string) error {
	unlock := store.locks.Lock(userID)
	defer unlock()

	if err := store.log.DeleteUser(ctx, userID); err != nil {
		return storeUnavailable("delete events", err)
	}
	for _, entry := range store.consumers {
		if consumer, ok := entry.consumer.(Replayable); ok {
			if err := consumer.Reset(ctx, userID); err != nil {
				return fmt.Errorf("reset %s: %w", entry.name, err)
			}
		}
	}
	return nil
}

// WithUserLock runs fn while holding the same per-user lock appends take.
func (store *EventStore) WithUserLock(userID string, fn func() error) error {
	unlock := store.locks.Lock(userID)
	defer unlock()
	return fn()
}
