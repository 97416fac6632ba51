// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements WalletAuth. A caller identifies itself with a Stellar
// account key, sent either as X-Public-Key or as the credential of an
// Authorization header ("Bearer G...", "Wallet G..."). The key is checked for
// format only and then resolved to a registered user.
//
// Failure modes:
//   - missing or malformed key   → 401 unauthorized
//   - well-formed key, no user   → 404 user_not_found
//   - lookup failure             → 500 internal_error
//
// On success the user id and the canonical key are stored in the Gin context
// (UserID, PublicKey) and the request-scoped logger is enriched with user_id.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderPublicKey carries the caller's wallet key.
	HeaderPublicKey = "X-Public-Key"

	ctxKeyUserID    = "userID"
	ctxKeyPublicKey = "walletPublicKey"
)

// Identity resolution errors understood by WalletAuth.
var (
	ErrBadCredential = errors.New("invalid wallet credential")
	ErrUnknownWallet = errors.New("wallet not registered")
)

// WalletResolver maps a presented key to a user id. It returns
// ErrBadCredential for malformed keys and ErrUnknownWallet when no user
// exists; any other error is treated as an internal failure.
type WalletResolver func(ctx context.Context, publicKey string) (userID, canonicalKey string, err error)

// WalletAuth authenticates the request with resolve.
func WalletAuth(resolve WalletResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := PresentedKey(c.Request)
		if key == "" {
			authFailures.WithLabelValues("missing").Inc()
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing wallet public key")
			return
		}

		uid, canonical, err := resolve(c.Request.Context(), key)
		switch {
		case errors.Is(err, ErrBadCredential):
			authFailures.WithLabelValues("malformed").Inc()
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid wallet public key")
			return
		case errors.Is(err, ErrUnknownWallet):
			authFailures.WithLabelValues("unknown").Inc()
			abortJSON(c, http.StatusNotFound, "user_not_found", "user not found")
			return
		case err != nil:
			LoggerFrom(c).Error().Err(err).Msg("wallet lookup failed")
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		c.Set(ctxKeyUserID, uid)
		c.Set(ctxKeyPublicKey, canonical)
		enrichLogger(c, "user_id", uid)
		c.Next()
	}
}

// PresentedKey returns the wallet key from X-Public-Key, falling back to the
// credential part of the Authorization header.
func PresentedKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(HeaderPublicKey)); k != "" {
		return k
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	if _, cred, ok := strings.Cut(auth, " "); ok {
		return strings.TrimSpace(cred)
	}
	return auth
}

// UserID returns the authenticated user id, or "" outside WalletAuth.
func UserID(c *gin.Context) string { return c.GetString(ctxKeyUserID) }

// PublicKey returns the authenticated wallet key, or "" outside WalletAuth.
func PublicKey(c *gin.Context) string { return c.GetString(ctxKeyPublicKey) }

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
