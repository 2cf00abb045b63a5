package db

import (
	"context"
	"errors"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"gorm.io/gorm"
)

type CorrelationRepository struct {
	database *gorm.DB
}

func NewCorrelationRepository(database *gorm.DB) *CorrelationRepository {
	return &CorrelationRepository{database: database}
}

func (repo *CorrelationRepository) Increment(ctx context.Context, userID string, factor string, at time.Time) error {
	return repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counter := models.CorrelationCounter{}
		err := tx.Where("user_id = ? AND factor = ?", userID, factor).First(&counter).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.CorrelationCounter{
				UserID:       userID,
				Factor:       factor,
				SymptomCount: 1,
				TouchedAt:    at.UTC(),
			}).Error
		case err != nil:
			return err
		}

		touchedAt := counter.TouchedAt.UTC()
		if at.After(touchedAt) {
			touchedAt = at.UTC()
		}
		return tx.Model(&models.CorrelationCounter{}).
			Where("user_id = ? AND factor = ?", userID, factor).
			Updates(map[string]any{"symptom_count": counter.SymptomCount + 1, "touched_at": touchedAt}).Error
	})
}

func (repo *CorrelationRepository) List(ctx context.Context, userID string) ([]models.CorrelationCounter, error) {
	counters := make([]models.CorrelationCounter, 0)
	if err := repo.database.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("factor ASC").
		Find(&counters).Error; err != nil {
		return nil, err
	}
	return counters, nil
}

func (repo *CorrelationRepository) DeleteUser(ctx context.Context, userID string) error {
	return repo.database.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CorrelationCounter{}).Error
}
