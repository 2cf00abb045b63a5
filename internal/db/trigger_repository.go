package db

import (
	"context"
	"errors"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TriggerRepository struct {
	database *gorm.DB
}

func NewTriggerRepository(database *gorm.DB) *TriggerRepository {
	return &TriggerRepository{database: database}
}

// RecordOccurrence inserts the occurrence unless the outcome event already counted for that kind.
func (repo *TriggerRepository) RecordOccurrence(ctx context.Context, occurrence models.TriggerOccurrence) (bool, error) {
	occurrence.OccurredAt = occurrence.OccurredAt.UTC()
	result := repo.database.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&occurrence)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo *TriggerRepository) RecordObservation(ctx context.Context, observation models.OutcomeObservation) (bool, error) {
	observation.OccurredAt = observation.OccurredAt.UTC()
	result := repo.database.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&observation)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo *TriggerRepository) CountOccurrences(ctx context.Context, userID string, outcome models.Outcome, activityKind string) (int64, error) {
	var count int64
	if err := repo.database.WithContext(ctx).
		Model(&models.TriggerOccurrence{}).
		Where("user_id = ? AND outcome = ? AND activity_kind = ?", userID, outcome, activityKind).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (repo *TriggerRepository) CountObservations(ctx context.Context, userID string, outcome models.Outcome) (int64, error) {
	var count int64
	if err := repo.database.WithContext(ctx).
		Model(&models.OutcomeObservation{}).
		Where("user_id = ? AND outcome = ?", userID, outcome).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (repo *TriggerRepository) FindCandidate(ctx context.Context, userID string, outcome models.Outcome, activityKind string) (models.TriggerCandidate, bool, error) {
	candidate := models.TriggerCandidate{}
	err := repo.database.WithContext(ctx).
		Where("user_id = ? AND outcome = ? AND activity_kind = ?", userID, outcome, activityKind).
		First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.TriggerCandidate{}, false, nil
	}
	if err != nil {
		return models.TriggerCandidate{}, false, err
	}
	return candidate, true, nil
}

func (repo *TriggerRepository) SaveCandidate(ctx context.Context, candidate models.TriggerCandidate) error {
	candidate.LastSeenAt = candidate.LastSeenAt.UTC()
	return repo.database.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&candidate).Error
}

func (repo *TriggerRepository) DeleteCandidate(ctx context.Context, userID string, outcome models.Outcome, activityKind string) error {
	return repo.database.WithContext(ctx).
		Where("user_id = ? AND outcome = ? AND activity_kind = ?", userID, outcome, activityKind).
		Delete(&models.TriggerCandidate{}).Error
}

func (repo *TriggerRepository) ListCandidates(ctx context.Context, userID string, outcome models.Outcome) ([]models.TriggerCandidate, error) {
	candidates := make([]models.TriggerCandidate, 0)
	if err := repo.database.WithContext(ctx).
		Where("user_id = ? AND outcome = ?", userID, outcome).
		Order("activity_kind ASC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// TrimBefore drops occurrences and observations joined to outcome events older than cutoff.
func (repo *TriggerRepository) TrimBefore(ctx context.Context, userID string, cutoff time.Time) error {
	return repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND occurred_at < ?", userID, cutoff.UTC()).
			Delete(&models.TriggerOccurrence{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND occurred_at < ?", userID, cutoff.UTC()).
			Delete(&models.OutcomeObservation{}).Error
	})
}

func (repo *TriggerRepository) DeleteUser(ctx context.Context, userID string) error {
	return repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.TriggerOccurrence{}, &models.OutcomeObservation{}, &models.TriggerCandidate{}} {
			if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
