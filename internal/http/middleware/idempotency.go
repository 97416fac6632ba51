// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements response replay for unsafe requests that carry an
// Idempotency-Key header. The first successful (2xx) response for a
// (user, resource, key) triple is recorded; later requests with the same key
// get the recorded status and body back with Idempotency-Replayed: true and
// never reach the handler or any middleware after this one, rate limiting
// included. While a keyed request is running, a duplicate carrying the same
// key is rejected with 409 idempotency_in_progress. Reservations live in
// process memory, so the guarantee holds per server instance.
//
// Persistence is injected through IdempotencyStore so the middleware stays
// free of database code. It must run after WalletAuth.
package middleware

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed marks a replayed response.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
)

// Recorded is a stored response.
type Recorded struct {
	Status int
	Body   []byte
}

// IdempotencyStore loads and saves recorded responses. Load returns nil when
// nothing valid is stored; errors from either method never fail the request.
type IdempotencyStore interface {
	Load(ctx context.Context, userID, resourceID, key string) (*Recorded, error)
	Save(ctx context.Context, userID, resourceID, key string, rec Recorded) error
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Param names the route parameter identifying the resource. Defaults to "id".
	Param string
}

// GetIdempotencyKey returns the validated key stashed by Idempotent.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Get(ctxKeyIdemKey)
	k, _ := s.(string)
	return k, k != ""
}

// IsReplay reports whether the response was served from a recording.
func IsReplay(c *gin.Context) bool { return c.GetBool(ctxKeyIdemReplay) }

// Idempotent replays recorded responses and records new successful ones.
func Idempotent(opts IdempotencyOptions, store IdempotencyStore) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	param := opts.Param
	if param == "" {
		param = "id"
	}
	running := &reservations{m: map[string]struct{}{}}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)
		if store == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		uid, resource := UserID(c), c.Param(param)
		// Reserve before Load so a duplicate admitted after release sees the saved record.
		slot := uid + "|" + resource + "|" + key
		if !running.reserve(slot) {
			abortJSON(c, http.StatusConflict, "idempotency_in_progress", "a request with this Idempotency-Key is in progress")
			return
		}
		defer running.release(slot)

		rec, err := store.Load(ctx, uid, resource, key)
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		}
		if rec != nil {
			c.Set(ctxKeyIdemReplay, true)
			c.Header(HeaderIdempotencyReplayed, "true")
			c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
			c.Abort()
			return
		}

		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 {
			return
		}
		if err := store.Save(ctx, uid, resource, key, Recorded{Status: status, Body: w.buf.Bytes()}); err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
		}
	}
}

type reservations struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func (r *reservations) reserve(k string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.m[k]; busy {
		return false
	}
	r.m[k] = struct{}{}
	return true
}

func (r *reservations) release(k string) {
	r.mu.Lock()
	delete(r.m, k)
	r.mu.Unlock()
}

// recordingWriter tees the response body into buf.
type recordingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
