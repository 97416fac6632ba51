// Package services defines the business logic for wallet users, projects,
// their files and conversations, the chat-driven generation turn, container
// deployment and export/mint. This file centralizes the service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Identity errors.
var (
	// ErrInvalidPublicKey is returned when a wallet key is missing or malformed.
	ErrInvalidPublicKey = errors.New("invalid stellar public key")

	// ErrUserNotFound indicates that no user is registered for a wallet key.
	ErrUserNotFound = errors.New("user not found")
)

// Project and file errors.
var (
	// ErrProjectNotFound indicates that the project does not exist or is not
	// owned by the current user.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidProjectName is returned for blank or overlong project names.
	ErrInvalidProjectName = errors.New("invalid project name")

	// ErrFileNotFound indicates that the file does not exist in the project.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileExists is returned when a path is already taken in the project.
	ErrFileExists = errors.New("file already exists")

	// ErrInvalidFile is returned for an empty or unsafe path or an unknown kind.
	ErrInvalidFile = errors.New("invalid file")
)

// Chat errors.
var (
	// ErrEmptyMessage is returned when a chat message is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when a chat message exceeds the configured limit.
	ErrMessageTooLong = errors.New("message too long")

	// ErrGenerationFailed wraps any failure after the user message was stored.
	ErrGenerationFailed = errors.New("chat generation failed")
)

// Deployment and export errors.
var (
	// ErrNoFiles is returned when deploying a project without files.
	ErrNoFiles = errors.New("no files found in project")

	// ErrNotDeployed is returned when stopping a project that has no container.
	ErrNotDeployed = errors.New("project is not deployed")

	// ErrDeployUnavailable is returned when no container runtime is configured.
	ErrDeployUnavailable = errors.New("container runtime unavailable")

	// ErrMissingStellarAddress is returned when no mint recipient can be determined.
	ErrMissingStellarAddress = errors.New("missing stellar address")

	// ErrMintUnavailable is returned when no ledger contract is configured.
	ErrMintUnavailable = errors.New("minting unavailable")
)
