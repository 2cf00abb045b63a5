package db

import (
	"context"
	"errors"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"gorm.io/gorm"
)

type WindowBucketRepository struct {
	database *gorm.DB
}

func NewWindowBucketRepository(database *gorm.DB) *WindowBucketRepository {
	return &WindowBucketRepository{database: database}
}

// Increment adds one to the bucket and moves touched_at forward, never back.
func (repo *WindowBucketRepository) Increment(ctx context.Context, userID string, kind models.WindowKind, series models.EventType, bucketKey int, at time.Time) error {
	return repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bucket := models.WindowBucket{}
		err := tx.Where("user_id = ? AND kind = ? AND series = ? AND bucket_key = ?", userID, kind, series, bucketKey).
			First(&bucket).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			bucket = models.WindowBucket{
				UserID:    userID,
				Kind:      kind,
				Series:    series,
				BucketKey: bucketKey,
				Count:     1,
				TouchedAt: at.UTC(),
			}
			return tx.Create(&bucket).Error
		case err != nil:
			return err
		}

		touchedAt := bucket.TouchedAt.UTC()
		if at.After(touchedAt) {
			touchedAt = at.UTC()
		}
		return tx.Model(&models.WindowBucket{}).
			Where("user_id = ? AND kind = ? AND series = ? AND bucket_key = ?", userID, kind, series, bucketKey).
			Updates(map[string]any{"count": bucket.Count + 1, "touched_at": touchedAt}).Error
	})
}

func (repo *WindowBucketRepository) List(ctx context.Context, userID string, kind models.WindowKind, series models.EventType) ([]models.WindowBucket, error) {
	buckets := make([]models.WindowBucket, 0)
	if err := repo.database.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND series = ?", userID, kind, series).
		Order("bucket_key ASC").
		Find(&buckets).Error; err != nil {
		return nil, err
	}
	return buckets, nil
}

// DeleteTouchedBefore zeroes every bucket of the kind that has not been touched since cutoff.
func (repo *WindowBucketRepository) DeleteTouchedBefore(ctx context.Context, userID string, kind models.WindowKind, cutoff time.Time) (int64, error) {
	result := repo.database.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND touched_at < ?", userID, kind, cutoff.UTC()).
		Delete(&models.WindowBucket{})
	return result.RowsAffected, result.Error
}

func (repo *WindowBucketRepository) DeleteUser(ctx context.Context, userID string) error {
	return repo.database.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.WindowBucket{}).Error
}
