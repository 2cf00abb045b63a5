package db

import (
	"context"
	"errors"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerRepository struct {
	database *gorm.DB
}

func NewLedgerRepository(database *gorm.DB) *LedgerRepository {
	return &LedgerRepository{database: database}
}

func (repo *LedgerRepository) EnsureState(ctx context.Context, userID string) error {
	state := models.SharingState{UserID: userID}
	return repo.database.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&state).Error
}

func (repo *LedgerRepository) FindState(ctx context.Context, userID string) (models.SharingState, bool, error) {
	state := models.SharingState{}
	err := repo.database.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SharingState{}, false, nil
	}
	if err != nil {
		return models.SharingState{}, false, err
	}
	return state, true, nil
}

// RecordConversation raises the stored conversation count; it never lowers it.
func (repo *LedgerRepository) RecordConversation(ctx context.Context, userID string, count int) error {
	return repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.SharingState{UserID: userID}).Error; err != nil {
			return err
		}
		return tx.Model(&models.SharingState{}).
			Where("user_id = ? AND conversation_count < ?", userID, count).
			Update("conversation_count", count).Error
	})
}

// MarkShared records the insight once; only the first call moves last_shared_at.
func (repo *LedgerRepository) MarkShared(ctx context.Context, shared models.SharedInsight) (bool, error) {
	shared.SharedAt = shared.SharedAt.UTC()
	inserted := false
	err := repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.SharingState{UserID: shared.UserID}).Error; err != nil {
			return err
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&shared)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true

		state := models.SharingState{}
		if err := tx.Where("user_id = ?", shared.UserID).First(&state).Error; err != nil {
			return err
		}
		if state.LastSharedAt != nil && !shared.SharedAt.After(state.LastSharedAt.UTC()) {
			return nil
		}
		return tx.Model(&models.SharingState{}).
			Where("user_id = ?", shared.UserID).
			Update("last_shared_at", shared.SharedAt).Error
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (repo *LedgerRepository) WasShared(ctx context.Context, userID string, insightID string) (bool, error) {
	var count int64
	if err := repo.database.WithContext(ctx).
		Model(&models.SharedInsight{}).
		Where("user_id = ? AND insight_id = ?", userID, insightID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (repo *LedgerRepository) ListSharedIDs(ctx context.Context, userID string) ([]string, error) {
	ids := make([]string, 0)
	if err := repo.database.WithContext(ctx).
		Model(&models.SharedInsight{}).
		Where("user_id = ?", userID).
		Order("insight_id ASC").
		Pluck("insight_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (repo *LedgerRepository) CountSharedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	if err := repo.database.WithContext(ctx).
		Model(&models.SharedInsight{}).
		Where("user_id = ? AND shared_at > ?", userID, since.UTC()).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (repo *LedgerRepository) Users(ctx context.Context) ([]string, error) {
	users := make([]string, 0)
	if err := repo.database.WithContext(ctx).
		Model(&models.SharingState{}).
		Order("user_id ASC").
		Pluck("user_id", &users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (repo *LedgerRepository) DeleteUser(ctx context.Context, userID string) error {
	return repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.SharedInsight{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&models.SharingState{}).Error
	})
}
