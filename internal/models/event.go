package models

import (
	"strings"
	"time"
)

type EventType string

const (
	EventSymptom  EventType = "symptom"
	EventRelief   EventType = "relief"
	EventActivity EventType = "activity"
	EventMessage  EventType = "message"
)

// EventID is the per-user log sequence. Zero means the event was not persisted.
type EventID uint64

func ParseEventType(raw string) (EventType, bool) {
	switch EventType(strings.ToLower(strings.TrimSpace(raw))) {
	case EventSymptom:
		return EventSymptom, true
	case EventRelief:
		return EventRelief, true
	case EventActivity:
		return EventActivity, true
	case EventMessage:
		return EventMessage, true
	default:
		return "", false
	}
}

func (eventType EventType) Valid() bool {
	switch eventType {
	case EventSymptom, EventRelief, EventActivity, EventMessage:
		return true
	default:
		return false
	}
}

type Event struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	UserID     string    `gorm:"not null;uniqueIndex:uidx_events_user_seq;index:idx_events_user_time" json:"user_id"`
	Seq        EventID   `gorm:"not null;uniqueIndex:uidx_events_user_seq" json:"id"`
	Type       EventType `gorm:"not null" json:"type"`
	OccurredAt time.Time `gorm:"not null;index:idx_events_user_time" json:"timestamp"`
	Text       string    `gorm:"not null;default:''" json:"text"`
	Metadata   Metadata  `gorm:"serializer:json" json:"metadata"`
	CreatedAt  time.Time `json:"-"`
}

// HourOfDay prefers the reported hour and falls back to the UTC timestamp.
func (event Event) HourOfDay() int {
	if event.Metadata.Hour != nil {
		return *event.Metadata.Hour
	}
	return event.OccurredAt.UTC().Hour()
}

// DayOfWeek is Monday-based (0 = Monday, 6 = Sunday).
func (event Event) DayOfWeek() int {
	if event.Metadata.DayOfWeek != nil {
		return *event.Metadata.DayOfWeek
	}
	return MondayBasedWeekday(event.OccurredAt.UTC().Weekday())
}

// ActivityKind is the normalized label used to group Activity events.
func (event Event) ActivityKind() string {
	if event.Metadata.Activity != "" {
		return NormalizeActivityKind(event.Metadata.Activity)
	}
	return NormalizeActivityKind(event.Text)
}

func MondayBasedWeekday(weekday time.Weekday) int {
	return (int(weekday) + 6) % 7
}

func NormalizeActivityKind(raw string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	return strings.Join(fields, "-")
}
