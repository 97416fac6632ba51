package ipfs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tbourn/stelgent-backend/internal/config"
)

func TestClient_Add(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/add" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"Name":"bundle","Hash":"QmTestCid","Size":"42"}`)
	}))
	defer srv.Close()

	c := New(config.IPFSConfig{APIURL: srv.URL, GatewayURL: "https://gw.example/ipfs/"})
	cid, err := c.Add(context.Background(), strings.NewReader(`{"project":{}}`))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if cid != "QmTestCid" {
		t.Fatalf("cid = %q", cid)
	}
	if !strings.Contains(gotBody, `{"project":{}}`) {
		t.Fatalf("content not uploaded: %q", gotBody)
	}
	if c.URL(cid) != "https://gw.example/ipfs/QmTestCid" {
		t.Fatalf("URL = %q", c.URL(cid))
	}
}

func TestClient_AddFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"Message":"repo locked","Code":0,"Type":"error"}`)
	}))
	defer srv.Close()

	c := New(config.IPFSConfig{APIURL: srv.URL})
	if _, err := c.Add(context.Background(), strings.NewReader("x")); err == nil {
		t.Fatalf("expected error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Add(ctx, strings.NewReader("x")); err == nil {
		t.Fatalf("expected context error")
	}
}
