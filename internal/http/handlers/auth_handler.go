// Wallet authentication and settings endpoints.
//
//   - POST /auth/wallet/connect   (public; find-or-create the wallet user)
//   - POST /auth/wallet/verify    (public; key format check only)
//   - GET  /auth/me               (current user)
//   - PUT  /settings/openai       (store the user's own completion key)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/http/middleware"
	"github.com/tbourn/stelgent-backend/internal/sysutil"
)

// WalletConnectRequest is the payload for connecting a wallet.
type WalletConnectRequest struct {
	PublicKey string `json:"public_key" binding:"required" example:"GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"`
}

// WalletVerifyRequest is the payload for the verify endpoint. Signature and
// Message are accepted but not checked.
type WalletVerifyRequest struct {
	PublicKey string `json:"public_key" binding:"required" example:"GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

// UserView is the public shape of a user. The completion key is masked.
type UserView struct {
	ID               string  `json:"id"`
	StellarPublicKey string  `json:"stellar_public_key"`
	OpenAIAPIKey     *string `json:"openai_api_key"`
}

// WalletConnectResponse returns the bearer token (the public key itself).
type WalletConnectResponse struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

// WalletVerifyResponse confirms a well-formed key.
type WalletVerifyResponse struct {
	Message   string `json:"message"`
	PublicKey string `json:"public_key"`
}

// MeResponse wraps the current user.
type MeResponse struct {
	User UserView `json:"user"`
}

// OpenAISettingsRequest sets or clears the user's completion key.
type OpenAISettingsRequest struct {
	OpenAIAPIKey *string `json:"openai_api_key"`
}

func userView(u *domain.User) UserView {
	v := UserView{ID: u.ID, StellarPublicKey: u.PublicKey}
	if u.HasOpenAIKey() {
		m := sysutil.MaskSecret(*u.OpenAIAPIKey)
		v.OpenAIAPIKey = &m
	}
	return v
}

// WalletConnect godoc
// @ID          walletConnect
// @Summary     Connect a Stellar wallet
// @Description Validates the public key and returns its user, creating it on first use. The token is the public key.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.WalletConnectRequest  true  "Wallet key"
// @Success     200   {object}  handlers.WalletConnectResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid public key"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/wallet/connect [post]
func (h *Handlers) WalletConnect(c *gin.Context) {
	var req WalletConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "public_key required")
		return
	}
	u, created, err := h.auth.Connect(c.Request.Context(), req.PublicKey)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	if created {
		middleware.LoggerFrom(c).Info().Str("user_id", u.ID).Msg("wallet registered")
	}
	ok(c, http.StatusOK, WalletConnectResponse{Token: u.PublicKey, User: userView(u)})
}

// WalletVerify godoc
// @ID          walletVerify
// @Summary     Check a wallet key
// @Description Validates the public key format. Signatures are not verified.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.WalletVerifyRequest  true  "Wallet key and signature"
// @Success     200   {object}  handlers.WalletVerifyResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid public key"
// @Router      /auth/wallet/verify [post]
func (h *Handlers) WalletVerify(c *gin.Context) {
	var req WalletVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "public_key required")
		return
	}
	key, err := h.auth.VerifyFormat(req.PublicKey)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, WalletVerifyResponse{
		Message:   "Public key format is valid (signature verification not implemented).",
		PublicKey: key,
	})
}

// Me godoc
// @ID          getMe
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Security    WalletKey
// @Success     200  {object}  handlers.MeResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid wallet key"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.auth.Me(c.Request.Context(), uid(c))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, MeResponse{User: userView(u)})
}

// UpdateOpenAISettings godoc
// @ID          updateOpenAISettings
// @Summary     Set the completion API key
// @Description Stores the caller's own completion key; null or blank clears it.
// @Tags        Settings
// @Accept      json
// @Produce     json
// @Security    WalletKey
// @Param       body  body      handlers.OpenAISettingsRequest  true  "Key"
// @Success     200   {object}  handlers.MessageResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Router      /settings/openai [put]
func (h *Handlers) UpdateOpenAISettings(c *gin.Context) {
	var req OpenAISettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key := ""
	if req.OpenAIAPIKey != nil {
		key = *req.OpenAIAPIKey
	}
	if _, err := h.auth.SetOpenAIKey(c.Request.Context(), uid(c), key); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	okMessage(c, "OpenAI API key updated successfully")
}
