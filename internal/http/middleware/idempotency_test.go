package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
)

type memIdemStore struct {
	mu      sync.Mutex
	recs    map[string]Recorded
	loadErr error
	saves   int
}

func newMemIdemStore() *memIdemStore { return &memIdemStore{recs: map[string]Recorded{}} }

func (s *memIdemStore) Load(_ context.Context, uid, res, key string) (*Recorded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if r, ok := s.recs[uid+"|"+res+"|"+key]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *memIdemStore) Save(_ context.Context, uid, res, key string, rec Recorded) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.recs[uid+"|"+res+"|"+key] = rec
	return nil
}

func idemRouter(store IdempotencyStore, calls *int, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		c.Set(ctxKeyUserID, c.GetHeader("X-Test-User"))
		c.Next()
	})
	r.POST("/projects/:id/chat", Idempotent(IdempotencyOptions{}, store), func(c *gin.Context) {
		*calls++
		if IsReplay(c) {
			panic("handler must not run on replay")
		}
		c.JSON(status, gin.H{"turn": *calls})
	})
	return r
}

func postChat(r *gin.Engine, user, project, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/projects/"+project+"/chat", strings.NewReader(`{}`))
	req.Header.Set("X-Test-User", user)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotent_RecordsAndReplays(t *testing.T) {
	_ = captureLogger(t)
	store := newMemIdemStore()
	calls := 0
	r := idemRouter(store, &calls, http.StatusOK)

	first := postChat(r, "u1", "p1", "turn-1")
	if first.Code != http.StatusOK || first.Body.String() != `{"turn":1}` {
		t.Fatalf("first call: %d %s", first.Code, first.Body.String())
	}
	if first.Header().Get(HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first call must not be marked as replay")
	}

	again := postChat(r, "u1", "p1", "turn-1")
	if again.Code != http.StatusOK || again.Body.String() != `{"turn":1}` {
		t.Fatalf("replay mismatch: %d %s", again.Code, again.Body.String())
	}
	if again.Header().Get(HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("expected replay header")
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times; want 1", calls)
	}

	// keys are scoped to user and project
	postChat(r, "u2", "p1", "turn-1")
	postChat(r, "u1", "p2", "turn-1")
	if calls != 3 {
		t.Fatalf("scoped keys must not replay across users or projects; calls=%d", calls)
	}

	// no key: always executes
	postChat(r, "u1", "p1", "")
	if calls != 4 {
		t.Fatalf("requests without a key always run; calls=%d", calls)
	}
}

func TestIdempotent_RejectsBadKeys(t *testing.T) {
	_ = captureLogger(t)
	calls := 0
	r := idemRouter(newMemIdemStore(), &calls, http.StatusOK)

	for _, key := range []string{"has space", "semi;colon", strings.Repeat("k", 201)} {
		w := postChat(r, "u1", "p1", key)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: got %d %s", key, w.Code, w.Body.String())
		}
	}
	if calls != 0 {
		t.Fatalf("handler must not run for rejected keys")
	}
}

func TestIdempotent_FailuresAreNotRecorded(t *testing.T) {
	_ = captureLogger(t)
	store := newMemIdemStore()
	calls := 0
	r := idemRouter(store, &calls, http.StatusBadGateway)

	postChat(r, "u1", "p1", "k")
	postChat(r, "u1", "p1", "k")
	if calls != 2 || store.saves != 0 {
		t.Fatalf("non-2xx must be retried; calls=%d saves=%d", calls, store.saves)
	}
}

func TestIdempotent_StoreErrorsDegrade(t *testing.T) {
	_ = captureLogger(t)
	store := newMemIdemStore()
	store.loadErr = errors.New("db locked")
	calls := 0
	r := idemRouter(store, &calls, http.StatusOK)

	if w := postChat(r, "u1", "p1", "k"); w.Code != http.StatusOK {
		t.Fatalf("lookup failure must not fail the request: %d", w.Code)
	}
	if calls != 1 {
		t.Fatalf("handler should run once, ran %d", calls)
	}
}

func TestIdempotent_NilStoreOnlyValidates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/x/:id", Idempotent(IdempotencyOptions{}, nil), func(c *gin.Context) {
		k, ok := GetIdempotencyKey(c)
		if !ok || k != "abc" {
			t.Fatalf("key not stashed: %q %v", k, ok)
		}
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/x/1", nil)
	req.Header.Set(HeaderIdempotencyKey, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("got %d", w.Code)
	}
}

func TestIdempotent_ConcurrentDuplicateIsRejected(t *testing.T) {
	_ = captureLogger(t)
	gin.SetMode(gin.TestMode)
	store := newMemIdemStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		c.Set(ctxKeyUserID, c.GetHeader("X-Test-User"))
		c.Next()
	})
	r.POST("/projects/:id/chat", Idempotent(IdempotencyOptions{}, store), func(c *gin.Context) {
		n := calls.Add(1)
		if n == 1 {
			close(entered)
			<-release
		}
		c.JSON(http.StatusOK, gin.H{"turn": n})
	})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- postChat(r, "u1", "p1", "turn-1") }()
	<-entered

	dup := postChat(r, "u1", "p1", "turn-1")
	if dup.Code != http.StatusConflict || !strings.Contains(dup.Body.String(), `"idempotency_in_progress"`) {
		t.Fatalf("duplicate in flight: %d %s", dup.Code, dup.Body.String())
	}
	if w := postChat(r, "u1", "p1", "turn-2"); w.Code != http.StatusOK {
		t.Fatalf("a different key must not wait, got %d", w.Code)
	}

	close(release)
	if first := <-done; first.Code != http.StatusOK || first.Body.String() != `{"turn":1}` {
		t.Fatalf("first call: %d %s", first.Code, first.Body.String())
	}

	again := postChat(r, "u1", "p1", "turn-1")
	if again.Header().Get(HeaderIdempotencyReplayed) != "true" || again.Body.String() != `{"turn":1}` {
		t.Fatalf("retry after completion should replay, got %d %s", again.Code, again.Body.String())
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("handler calls = %d; want 2", got)
	}
}
