// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response utilities used across all endpoints: the
// structured error envelope, the mapping from service errors to statuses and
// codes, and small helpers for success responses.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error formatting; 5xx responses are logged with
//     the request-scoped logger.
//   - `failErr()` translates a service error with errors.Is, so handlers never
//     compare error strings.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "project_not_found",
//	  "message": "project not found"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/stelgent-backend/internal/http/middleware"
	"github.com/tbourn/stelgent-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"project_not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"project not found"`
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message" example:"Project deleted successfully"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// errorMapping pairs a service sentinel with its HTTP translation.
type errorMapping struct {
	target error
	status int
	code   string
}

// serviceErrors is checked in order; the first errors.Is match wins.
// ErrGenerationFailed sits last because it wraps the underlying cause.
var serviceErrors = []errorMapping{
	{services.ErrInvalidPublicKey, http.StatusBadRequest, ErrCodeInvalidPublicKey},
	{services.ErrUserNotFound, http.StatusNotFound, ErrCodeUserNotFound},
	{services.ErrProjectNotFound, http.StatusNotFound, ErrCodeProjectNotFound},
	{services.ErrInvalidProjectName, http.StatusBadRequest, ErrCodeInvalidName},
	{services.ErrFileNotFound, http.StatusNotFound, ErrCodeFileNotFound},
	{services.ErrFileExists, http.StatusConflict, ErrCodeFileExists},
	{services.ErrInvalidFile, http.StatusBadRequest, ErrCodeInvalidFile},
	{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeEmptyMessage},
	{services.ErrMessageTooLong, http.StatusBadRequest, ErrCodeMessageTooLong},
	{services.ErrNoFiles, http.StatusBadRequest, ErrCodeNoFiles},
	{services.ErrNotDeployed, http.StatusBadRequest, ErrCodeNotDeployed},
	{services.ErrDeployUnavailable, http.StatusServiceUnavailable, ErrCodeDeployUnavailable},
	{services.ErrMissingStellarAddress, http.StatusBadRequest, ErrCodeMissingAddress},
	{services.ErrMintUnavailable, http.StatusServiceUnavailable, ErrCodeMintUnavailable},
	{services.ErrGenerationFailed, http.StatusBadGateway, ErrCodeGenerationFailed},
}

// failErr maps err to a status and code. Unknown errors become a 500 with
// fallbackCode; their text is logged but never sent to the client.
func failErr(c *gin.Context, err error, fallbackCode string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				middleware.LoggerFrom(c).Error().Err(err).Str("code", m.code).Msg("request failed")
			}
			fail(c, m.status, m.code, m.target.Error())
			return
		}
	}
	middleware.LoggerFrom(c).Error().Err(err).Str("code", fallbackCode).Msg("request failed")
	fail(c, http.StatusInternalServerError, fallbackCode, "internal server error")
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// okMessage writes {"message": msg} with status 200.
func okMessage(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, MessageResponse{Message: msg})
}
