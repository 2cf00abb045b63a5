package models

import "time"

type InsightKind string

const (
	InsightTemporalPattern          InsightKind = "temporal_pattern"
	InsightEnvironmentalCorrelation InsightKind = "environmental_correlation"
	InsightTriggerDiscovery         InsightKind = "trigger_discovery"
	InsightReliefEffectiveness      InsightKind = "relief_effectiveness"
)

// Insight ids are stable per subject, e.g. "trigger_discovery:morning-rush".
type Insight struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Kind        InsightKind       `json:"kind"`
	Confidence  float64           `json:"confidence"`
	Message     string            `json:"message"`
	Subject     map[string]string `json:"subject,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

const (
	SharingCold   = "cold"
	SharingWarm   = "warm"
	SharingActive = "active"
)

type SharingState struct {
	UserID            string `gorm:"primaryKey"`
	ConversationCount int    `gorm:"not null;default:0"`
	LastSharedAt      *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type SharedInsight struct {
	UserID    string      `gorm:"primaryKey"`
	InsightID string      `gorm:"primaryKey"`
	Kind      InsightKind `gorm:"not null"`
	SharedAt  time.Time   `gorm:"not null;index"`
}
