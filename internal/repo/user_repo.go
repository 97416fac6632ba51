// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for wallet users.
//
// Error semantics:
//   - When a user is not found, functions return ErrNotFound.
//   - On DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetUser fetches a user by primary key.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByPublicKey fetches a user by wallet public key.
func GetUserByPublicKey(ctx context.Context, db *gorm.DB, publicKey string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("public_key = ?", publicKey).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindOrCreateUser returns the user owning publicKey, creating it on first
// sight. The boolean reports whether a row was inserted. A concurrent insert
// of the same key is resolved by re-reading the winner.
func FindOrCreateUser(ctx context.Context, db *gorm.DB, publicKey string) (*domain.User, bool, error) {
	u, err := GetUserByPublicKey(ctx, db, publicKey)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	nu := &domain.User{
		ID:        uuid.NewString(),
		PublicKey: publicKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(nu).Error; err != nil {
		if isUniqueViolation(err) {
			u, err := GetUserByPublicKey(ctx, db, publicKey)
			return u, false, err
		}
		return nil, false, err
	}
	return nu, true, nil
}

// SetUserOpenAIKey stores (or clears, when key is nil) the user's own
// completion API key. Returns ErrNotFound if the user does not exist.
func SetUserOpenAIKey(ctx context.Context, db *gorm.DB, userID string, key *string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"openai_api_key": key, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
