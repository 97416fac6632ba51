// Package llm wraps the chat-completion API behind a small interface and
// applies the bounded retry policy used for every model call.
//
// Only rate limiting (429) and unavailability (503) are retried. Failures
// that carry any other HTTP status are returned immediately. Failures with no
// status at all (network errors, timeouts at the transport) are treated as
// transient.
package llm

import (
	"context"
	"errors"
)

// Roles accepted by Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a completion request.
type Message struct {
	Role    string
	Content string
}

// Request describes a single completion. Zero values fall back to the
// client's configured defaults.
type Request struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature *float32
	MaxRetries  int
	// APIKey overrides the server key for this call (per-user keys).
	APIKey string
}

// Completer returns generated text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

var (
	// ErrNoAPIKey is returned when neither the request nor the client carries a key.
	ErrNoAPIKey = errors.New("llm: no api key configured")
	// ErrEmptyResponse is returned when the API answers without any choice.
	ErrEmptyResponse = errors.New("llm: empty completion response")
)

// Float32 returns a pointer to v, for Request.Temperature.
func Float32(v float32) *float32 { return &v }
