package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sashabaranov/go-openai"
)

// maxBackoff caps the exponential part of the wait between attempts.
const maxBackoff = 30 * time.Second

// cappedJitter yields min(30s, 2^attempt s) + U(0,1)s, with attempt counting from 1.
type cappedJitter struct {
	attempt int
	jitter  func() time.Duration
}

func newCappedJitter() *cappedJitter {
	return &cappedJitter{jitter: func() time.Duration {
		return time.Duration(rand.Float64() * float64(time.Second))
	}}
}

// NextBackOff implements backoff.BackOff.
func (b *cappedJitter) NextBackOff() time.Duration {
	b.attempt++
	exp := time.Duration(math.Pow(2, float64(b.attempt))) * time.Second
	if exp > maxBackoff || exp <= 0 {
		exp = maxBackoff
	}
	return exp + b.jitter()
}

// Reset implements backoff.BackOff.
func (b *cappedJitter) Reset() { b.attempt = 0 }

// HTTPStatus extracts the HTTP status carried by an API error, if any.
func HTTPStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status, ok := HTTPStatus(err)
	if !ok {
		return true
	}
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retry runs op up to maxTries times, sleeping per bo between attempts.
// The last error is returned once attempts are exhausted.
func retry[T any](ctx context.Context, maxTries int, bo backoff.BackOff, notify backoff.Notify, op func(context.Context) (T, error)) (T, error) {
	if maxTries < 1 {
		maxTries = 1
	}
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}
