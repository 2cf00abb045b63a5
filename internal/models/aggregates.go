package models

import (
	"fmt"
	"time"
)

type WindowKind string

const (
	WindowHourOfDay WindowKind = "hour_of_day"
	WindowDayOfWeek WindowKind = "day_of_week"
)

func WindowKinds() []WindowKind {
	return []WindowKind{WindowHourOfDay, WindowDayOfWeek}
}

// BucketCount is the number of buckets a window kind is partitioned into.
func (kind WindowKind) BucketCount() int {
	switch kind {
	case WindowHourOfDay:
		return 24
	case WindowDayOfWeek:
		return 7
	default:
		return 0
	}
}

// BucketFor returns the bucket an event falls into for this window kind.
func (kind WindowKind) BucketFor(event Event) (int, bool) {
	switch kind {
	case WindowHourOfDay:
		return event.HourOfDay(), true
	case WindowDayOfWeek:
		return event.DayOfWeek(), true
	default:
		return 0, false
	}
}

func ParseWindowKind(raw string) (WindowKind, error) {
	for _, kind := range WindowKinds() {
		if string(kind) == raw {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown window kind %q", raw)
}

type WindowBucket struct {
	UserID    string     `gorm:"primaryKey"`
	Kind      WindowKind `gorm:"primaryKey"`
	Series    EventType  `gorm:"primaryKey"`
	BucketKey int        `gorm:"primaryKey"`
	Count     int64      `gorm:"not null;default:0"`
	TouchedAt time.Time  `gorm:"not null"`
}

const (
	FactorLowPressure  = "low_pressure"
	FactorHighPressure = "high_pressure"
)

type CorrelationCounter struct {
	UserID       string    `gorm:"primaryKey"`
	Factor       string    `gorm:"primaryKey"`
	SymptomCount int64     `gorm:"not null;default:0"`
	TouchedAt    time.Time `gorm:"not null"`
}

// Outcome separates activities that precede symptoms from those that precede relief.
type Outcome string

const (
	OutcomeSymptom Outcome = "symptom"
	OutcomeRelief  Outcome = "relief"
)

func OutcomeFor(eventType EventType) (Outcome, bool) {
	switch eventType {
	case EventSymptom:
		return OutcomeSymptom, true
	case EventRelief:
		return OutcomeRelief, true
	default:
		return "", false
	}
}

type TriggerCandidate struct {
	UserID         string        `gorm:"primaryKey"`
	Outcome        Outcome       `gorm:"primaryKey"`
	ActivityKind   string        `gorm:"primaryKey"`
	LookbackWindow time.Duration `gorm:"not null"`
	Occurrences    int64         `gorm:"not null;default:0"`
	Confirmed      bool          `gorm:"not null;default:false"`
	ConfirmedAt    *time.Time
	LastSeenAt     time.Time `gorm:"not null"`
}

// TriggerOccurrence is one activity kind observed before one outcome event.
type TriggerOccurrence struct {
	UserID       string    `gorm:"primaryKey"`
	Outcome      Outcome   `gorm:"primaryKey"`
	ActivityKind string    `gorm:"primaryKey"`
	OutcomeSeq   EventID   `gorm:"primaryKey"`
	ActivitySeq  EventID   `gorm:"not null"`
	OccurredAt   time.Time `gorm:"not null;index"`
}

// OutcomeObservation records that an outcome event was joined by the detector.
type OutcomeObservation struct {
	UserID     string    `gorm:"primaryKey"`
	Outcome    Outcome   `gorm:"primaryKey"`
	OutcomeSeq EventID   `gorm:"primaryKey"`
	OccurredAt time.Time `gorm:"not null;index"`
}
