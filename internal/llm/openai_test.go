package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"github.com/tbourn/stelgent-backend/internal/config"
)

type capturedRequest struct {
	Auth string
	Body struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
}

// fakeAPI fails the first `failures` calls with status, then answers "hello".
func fakeAPI(t *testing.T, failures int32, status int, last *capturedRequest) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		n := atomic.AddInt32(&calls, 1)
		if last != nil {
			last.Auth = r.Header.Get("Authorization")
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &last.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(baseURL, key string) *OpenAIClient {
	c := NewOpenAIClient(config.OpenAIConfig{
		APIKey: key, BaseURL: baseURL + "/v1", Model: "gpt-4o", MaxTokens: 2000, Temperature: 0.3, MaxRetries: 6,
	})
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func TestOpenAIClient_RetriesThenSucceeds(t *testing.T) {
	var last capturedRequest
	srv, calls := fakeAPI(t, 2, http.StatusTooManyRequests, &last)
	c := newTestClient(srv.URL, "sk-server")

	out, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
	})
	if err != nil || out != "hello" {
		t.Fatalf("Complete = %q, %v", out, err)
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
	if last.Body.Model != "gpt-4o" || last.Body.MaxTokens != 2000 || len(last.Body.Messages) != 2 {
		t.Fatalf("defaults not applied: %+v", last.Body)
	}
	if last.Auth != "Bearer sk-server" {
		t.Fatalf("server key not used: %q", last.Auth)
	}
}

func TestOpenAIClient_GivesUpAfterMaxRetries(t *testing.T) {
	srv, calls := fakeAPI(t, 100, http.StatusServiceUnavailable, nil)
	c := newTestClient(srv.URL, "sk-server")

	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}, MaxRetries: 3})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if status, ok := HTTPStatus(err); !ok || status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 surfaced, got %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestOpenAIClient_FatalStatusIsNotRetried(t *testing.T) {
	srv, calls := fakeAPI(t, 100, http.StatusBadRequest, nil)
	c := newTestClient(srv.URL, "sk-server")

	if _, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Fatalf("expected failure")
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("400 must not be retried, got %d calls", got)
	}
}

func TestOpenAIClient_PerRequestOverrides(t *testing.T) {
	var last capturedRequest
	srv, _ := fakeAPI(t, 0, 0, &last)
	c := newTestClient(srv.URL, "")

	if _, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey without any key, got %v", err)
	}

	_, err := c.Complete(context.Background(), Request{
		Messages:    []Message{{Role: RoleUser, Content: "x"}},
		APIKey:      "sk-user",
		MaxTokens:   300,
		Temperature: Float32(0),
		Model:       "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if last.Auth != "Bearer sk-user" || last.Body.MaxTokens != 300 || last.Body.Model != "gpt-4o-mini" {
		t.Fatalf("overrides not applied: auth=%q body=%+v", last.Auth, last.Body)
	}
}

func TestCompleterFunc(t *testing.T) {
	var c Completer = CompleterFunc(func(_ context.Context, req Request) (string, error) {
		return req.Messages[0].Content, nil
	})
	if out, _ := c.Complete(context.Background(), Request{Messages: []Message{{Content: "echo"}}}); out != "echo" {
		t.Fatalf("CompleterFunc = %q", out)
	}
}
