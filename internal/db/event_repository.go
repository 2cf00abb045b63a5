package db

import (
	"context"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// eventSequence survives trims so ids never repeat for a user.
type eventSequence struct {
	UserID  string `gorm:"primaryKey"`
	LastSeq int64  `gorm:"not null;default:0"`
}

func (eventSequence) TableName() string {
	return "event_sequences"
}

type EventRepository struct {
	database *gorm.DB
}

func NewEventRepository(database *gorm.DB) *EventRepository {
	return &EventRepository{database: database}
}

// Append assigns the next per-user sequence and stores the event.
func (repo *EventRepository) Append(ctx context.Context, event models.Event) (models.EventID, error) {
	var assigned models.EventID
	err := repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&eventSequence{UserID: event.UserID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&eventSequence{}).
			Where("user_id = ?", event.UserID).
			Update("last_seq", gorm.Expr("last_seq + 1")).Error; err != nil {
			return err
		}
		sequence := eventSequence{}
		if err := tx.Where("user_id = ?", event.UserID).First(&sequence).Error; err != nil {
			return err
		}

		event.ID = 0
		event.Seq = models.EventID(sequence.LastSeq)
		event.OccurredAt = event.OccurredAt.UTC()
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		assigned = event.Seq
		return nil
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

// Range returns events with occurred_at in [from, to), oldest first.
func (repo *EventRepository) Range(ctx context.Context, userID string, from time.Time, to time.Time) ([]models.Event, error) {
	events := make([]models.Event, 0)
	if err := repo.database.WithContext(ctx).
		Where("user_id = ? AND occurred_at >= ? AND occurred_at < ?", userID, from.UTC(), to.UTC()).
		Order("occurred_at ASC, seq ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	for index := range events {
		events[index].OccurredAt = events[index].OccurredAt.UTC()
	}
	return events, nil
}

func (repo *EventRepository) Trim(ctx context.Context, userID string, olderThan time.Time) (int64, error) {
	result := repo.database.WithContext(ctx).
		Where("user_id = ? AND occurred_at < ?", userID, olderThan.UTC()).
		Delete(&models.Event{})
	return result.RowsAffected, result.Error
}

func (repo *EventRepository) Users(ctx context.Context) ([]string, error) {
	users := make([]string, 0)
	if err := repo.database.WithContext(ctx).
		Model(&models.Event{}).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (repo *EventRepository) DeleteUser(ctx context.Context, userID string) error {
	return repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.Event{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&eventSequence{}).Error
	})
}
