package services

import (
	"context"
	"strings"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
)

type LedgerStore interface {
	EnsureState(ctx context.Context, userID string) error
	FindState(ctx context.Context, userID string) (models.SharingState, bool, error)
	RecordConversation(ctx context.Context, userID string, count int) error
	MarkShared(ctx context.Context, shared models.SharedInsight) (bool, error)
	WasShared(ctx context.Context, userID string, insightID string) (bool, error)
	ListSharedIDs(ctx context.Context, userID string) ([]string, error)
	CountSharedSince(ctx context.Context, userID string, since time.Time) (int64, error)
	Users(ctx context.Context) ([]string, error)
	DeleteUser(ctx context.Context, userID string) error
}

type LedgerSnapshot struct {
	ConversationCount int
	LastSharedAt      *time.Time
	SharedIDs         map[string]struct{}
	SharedLastDay     int64
}

func (snapshot LedgerSnapshot) Phase(minConversations int) string {
	switch {
	case snapshot.LastSharedAt != nil:
		return models.SharingActive
	case snapshot.ConversationCount >= minConversations:
		return models.SharingWarm
	default:
		return models.SharingCold
	}
}

type InsightLedger struct {
	store LedgerStore
	now   func() time.Time
}

func NewInsightLedger(store LedgerStore, now func() time.Time) *InsightLedger {
	if now == nil {
		now = time.Now
	}
	return &InsightLedger{store: store, now: now}
}

// Consume creates the sharing state on a user's first event.
func (ledger *InsightLedger) Consume(ctx context.Context, event models.Event) error {
	return ledger.store.EnsureState(ctx, event.UserID)
}

// MarkShared is idempotent; the boolean reports whether this call recorded the share.
func (ledger *InsightLedger) MarkShared(ctx context.Context, userID string, insightID string, at time.Time) (bool, error) {
	kind, ok := InsightKindFromID(insightID)
	if !ok {
		return false, ErrUnknownInsightID
	}
	return ledger.store.MarkShared(ctx, models.SharedInsight{
		UserID:    userID,
		InsightID: insightID,
		Kind:      kind,
		SharedAt:  at.UTC(),
	})
}

func (ledger *InsightLedger) WasShared(ctx context.Context, userID string, insightID string) (bool, error) {
	return ledger.store.WasShared(ctx, userID, insightID)
}

func (ledger *InsightLedger) RecordConversation(ctx context.Context, userID string, count int) error {
	return ledger.store.RecordConversation(ctx, userID, count)
}

func (ledger *InsightLedger) Snapshot(ctx context.Context, userID string) (LedgerSnapshot, error) {
	state, _, err := ledger.store.FindState(ctx, userID)
	if err != nil {
		return LedgerSnapshot{}, err
	}
	ids, err := ledger.store.ListSharedIDs(ctx, userID)
	if err != nil {
		return LedgerSnapshot{}, err
	}
	sharedLastDay, err := ledger.store.CountSharedSince(ctx, userID, ledger.now().UTC().Add(-24*time.Hour))
	if err != nil {
		return LedgerSnapshot{}, err
	}

	snapshot := LedgerSnapshot{
		ConversationCount: state.ConversationCount,
		LastSharedAt:      state.LastSharedAt,
		SharedIDs:         make(map[string]struct{}, len(ids)),
		SharedLastDay:     sharedLastDay,
	}
	for _, id := range ids {
		snapshot.SharedIDs[id] = struct{}{}
	}
	return snapshot, nil
}

func (ledger *InsightLedger) Users(ctx context.Context) ([]string, error) {
	return ledger.store.Users(ctx)
}

func (ledger *InsightLedger) DeleteUser(ctx context.Context, userID string) error {
	return ledger.store.DeleteUser(ctx, userID)
}

func InsightKindFromID(insightID string) (models.InsightKind, bool) {
	prefix, rest, found := strings.Cut(insightID, ":")
	if !found || strings.TrimSpace(rest) == "" {
		return "", false
	}
	switch kind := models.InsightKind(prefix); kind {
	case models.InsightTemporalPattern, models.InsightEnvironmentalCorrelation, models.InsightTriggerDiscovery, models.InsightReliefEffectiveness:
		return kind, true
	default:
		return "", false
	}
}
