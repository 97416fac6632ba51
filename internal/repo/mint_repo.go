// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for NFT mint records.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// UpsertMint stores the mint for a project, replacing any earlier one.
// CreatedAt of the first mint is preserved.
func UpsertMint(ctx context.Context, db *gorm.DB, m *domain.MintRecord) (*domain.MintRecord, error) {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id", "stellar_address", "token_id", "ipfs_cid", "contract_id", "tx_hash", "updated_at",
			}),
		}).
		Create(m).Error
	if err != nil {
		return nil, err
	}
	return GetMintByProject(ctx, db, m.ProjectID)
}

// GetMintByProject returns the mint record for a project, or ErrNotFound.
func GetMintByProject(ctx context.Context, db *gorm.DB, projectID string) (*domain.MintRecord, error) {
	var m domain.MintRecord
	if err := db.WithContext(ctx).Where("project_id = ?", projectID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMintsByUser returns a user's mint records, most recently updated first.
func ListMintsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.MintRecord, error) {
	var out []domain.MintRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc, id desc").
		Find(&out).Error
	return out, err
}
