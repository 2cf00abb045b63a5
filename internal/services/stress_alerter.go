package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ash-Blanc/migru/internal/events"
	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/Ash-Blanc/migru/internal/security"
)

type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

const AlertHighPhysiologicalStress = "high_physiological_stress"

type WellnessAlert struct {
	Type       string         `json:"type"`
	Kind       string         `json:"kind"`
	UserID     string         `json:"user_id"`
	EventID    models.EventID `json:"event_id"`
	HeartRate  float64        `json:"heart_rate"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// StressAlerter publishes an alert for symptoms reported with an elevated heart rate.
type StressAlerter struct {
	publisher Publisher
	threshold float64
	tagger    *security.UserTagger
}

func NewStressAlerter(publisher Publisher, cfg AnalyticsConfig, tagger *security.UserTagger) *StressAlerter {
	return &StressAlerter{publisher: publisher, threshold: cfg.AlertHeartRateBPM, tagger: tagger}
}

func (alerter *StressAlerter) Consume(ctx context.Context, event models.Event) error {
	if alerter.publisher == nil || alerter.threshold <= 0 {
		return nil
	}
	if event.Type != models.EventSymptom || event.Metadata.HeartRate == nil || *event.Metadata.HeartRate <= alerter.threshold {
		return nil
	}

	payload, err := json.Marshal(WellnessAlert{
		Type:       events.TypeWellnessAlert,
		Kind:       AlertHighPhysiologicalStress,
		UserID:     event.UserID,
		EventID:    event.Seq,
		HeartRate:  *event.Metadata.HeartRate,
		OccurredAt: event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if err := alerter.publisher.Publish(ctx, events.TypeWellnessAlert, payload, alerter.tagger.Tag(event.UserID)); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}
