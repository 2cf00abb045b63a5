package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
)

type WindowBucketStore interface {
	Increment(ctx context.Context, userID string, kind models.WindowKind, series models.EventType, bucketKey int, at time.Time) error
	List(ctx context.Context, userID string, kind models.WindowKind, series models.EventType) ([]models.WindowBucket, error)
	DeleteTouchedBefore(ctx context.Context, userID string, kind models.WindowKind, cutoff time.Time) (int64, error)
	DeleteUser(ctx context.Context, userID string) error
}

type WindowAggregator struct {
	buckets WindowBucketStore
	cfg     AnalyticsConfig
}

func NewWindowAggregator(buckets WindowBucketStore, cfg AnalyticsConfig) *WindowAggregator {
	return &WindowAggregator{buckets: buckets, cfg: cfg}
}

func (aggregator *WindowAggregator) Consume(ctx context.Context, event models.Event) error {
	if event.Type != models.EventSymptom && event.Type != models.EventRelief {
		return nil
	}

	for _, kind := range models.WindowKinds() {
		key, ok := kind.BucketFor(event)
		if !ok || key < 0 || key >= kind.BucketCount() {
			continue
		}
		if err := aggregator.buckets.Increment(ctx, event.UserID, kind, event.Type, key, event.OccurredAt); err != nil {
			return fmt.Errorf("increment %s bucket %d: %w", kind, key, err)
		}
	}
	return nil
}

// Buckets returns every key of the window kind, with zero for untouched keys.
func (aggregator *WindowAggregator) Buckets(ctx context.Context, userID string, kind models.WindowKind, series models.EventType) (map[int]int64, error) {
	stored, err := aggregator.buckets.List(ctx, userID, kind, series)
	if err != nil {
		return nil, err
	}

	counts := make(map[int]int64, kind.BucketCount())
	for key := 0; key < kind.BucketCount(); key++ {
		counts[key] = 0
	}
	for _, bucket := range stored {
		if _, known := counts[bucket.BucketKey]; known {
			counts[bucket.BucketKey] = bucket.Count
		}
	}
	return counts, nil
}

// Decay zeroes buckets of the kind that were not touched within the window's duration.
func (aggregator *WindowAggregator) Decay(ctx context.Context, userID string, kind models.WindowKind, now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-aggregator.cfg.Window(kind).Duration)
	return aggregator.buckets.DeleteTouchedBefore(ctx, userID, kind, cutoff)
}

func (aggregator *WindowAggregator) Reset(ctx context.Context, userID string) error {
	return aggregator.buckets.DeleteUser(ctx, userID)
}
