// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the backing table of the response cache.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// GetCachedCompletion loads a cached completion by fingerprint, or ErrNotFound.
func GetCachedCompletion(ctx context.Context, db *gorm.DB, fingerprint string) (*domain.CachedCompletion, error) {
	var c domain.CachedCompletion
	if err := db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertCachedCompletion writes (or overwrites) the row for c.Fingerprint and
// stamps CreatedAt with the write time.
func UpsertCachedCompletion(ctx context.Context, db *gorm.DB, c *domain.CachedCompletion) error {
	c.CreatedAt = time.Now().UTC()
	if len(c.Files) == 0 {
		c.Files = []byte("[]")
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoUpdates: clause.AssignmentColumns([]string{"project_id", "response", "files", "created_at"}),
		}).
		Create(c).Error
}

// PruneCachedCompletions deletes rows written before cutoff and returns how many went.
func PruneCachedCompletions(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&domain.CachedCompletion{})
	return res.RowsAffected, res.Error
}
