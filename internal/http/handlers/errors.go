// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them instead
// of on messages. Generic codes mirror HTTP status semantics, domain codes
// name the service condition that produced them (see serviceErrors in
// response.go for the mapping).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "file_exists",
//	  "message": "file already exists"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeInvalidPublicKey  = "invalid_public_key"
	ErrCodeUserNotFound      = "user_not_found"
	ErrCodeProjectNotFound   = "project_not_found"
	ErrCodeInvalidName       = "invalid_project_name"
	ErrCodeFileNotFound      = "file_not_found"
	ErrCodeFileExists        = "file_exists"
	ErrCodeInvalidFile       = "invalid_file"
	ErrCodeEmptyMessage      = "empty_message"
	ErrCodeMessageTooLong    = "message_too_long"
	ErrCodeGenerationFailed  = "generation_failed"
	ErrCodeNoFiles           = "no_files"
	ErrCodeNotDeployed       = "not_deployed"
	ErrCodeDeployUnavailable = "deploy_unavailable"
	ErrCodeDeployFailed      = "deploy_failed"
	ErrCodeExportFailed      = "export_failed"
	ErrCodeMissingAddress    = "missing_stellar_address"
	ErrCodeMintUnavailable   = "mint_unavailable"
	ErrCodeMintFailed        = "mint_failed"
	ErrCodeListFailed        = "list_failed"
	ErrCodeCreateFailed      = "create_failed"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)
