// Package services – AuthService
//
// Wallet identities: a Stellar public key is the only credential. It is
// checked for format (strkey) and mapped to a user row; no signature is
// verified.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/repo"
	"github.com/tbourn/stelgent-backend/internal/wallet"
)

// AuthService resolves wallet keys to users and manages per-user settings.
type AuthService struct {
	DB *gorm.DB
}

// Connect validates publicKey and returns its user, creating it on first use.
func (s *AuthService) Connect(ctx context.Context, publicKey string) (*domain.User, bool, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Connect")
	defer span.End()

	key, err := wallet.ValidatePublicKey(publicKey)
	if err != nil {
		return nil, false, ErrInvalidPublicKey
	}
	u, created, err := repo.FindOrCreateUser(ctx, s.DB, key)
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID), attribute.Bool("user.created", created))
	return u, created, nil
}

// VerifyFormat checks that publicKey is a well-formed account key. The
// signature and message are accepted as-is.
func (s *AuthService) VerifyFormat(publicKey string) (string, error) {
	key, err := wallet.ValidatePublicKey(publicKey)
	if err != nil {
		return "", ErrInvalidPublicKey
	}
	return key, nil
}

// Resolve maps a presented wallet key to an existing user.
// It returns ErrInvalidPublicKey for malformed keys and ErrUserNotFound when
// the key never connected.
func (s *AuthService) Resolve(ctx context.Context, publicKey string) (*domain.User, error) {
	key, err := wallet.ValidatePublicKey(publicKey)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	u, err := repo.GetUserByPublicKey(ctx, s.DB, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Me returns the user by id.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// SetOpenAIKey stores the user's own completion key; a blank key clears it.
func (s *AuthService) SetOpenAIKey(ctx context.Context, userID, key string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "SetOpenAIKey",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	var stored *string
	if k := strings.TrimSpace(key); k != "" {
		stored = &k
	}
	if err := repo.SetUserOpenAIKey(ctx, s.DB, userID, stored); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.Me(ctx, userID)
}
