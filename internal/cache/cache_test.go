package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/repo"
)

func newCacheDB(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), repo.Options{LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	u, _, err := repo.FindOrCreateUser(ctx, db, "GCACHETESTUSER")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	p, err := repo.CreateProject(ctx, db, u.ID, "demo", "")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	return db, p.ID
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("sys", "msg", "p1")
	if len(base) != 64 {
		t.Fatalf("expected hex sha256, got %q", base)
	}
	if base != Fingerprint("sys", "msg", "p1") {
		t.Fatalf("fingerprint must be deterministic")
	}
	for name, fp := range map[string]string{
		"system prompt": Fingerprint("sys2", "msg", "p1"),
		"message":       Fingerprint("sys", "msg2", "p1"),
		"project":       Fingerprint("sys", "msg", "p2"),
	} {
		if fp == base {
			t.Fatalf("changing the %s must change the fingerprint", name)
		}
	}
}

func TestStore_SetGet_BothTiers(t *testing.T) {
	db, pid := newCacheDB(t)
	ctx := context.Background()
	s, err := NewStore(db, 8, 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if _, ok, err := s.Get(ctx, "fp"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	files := []domain.CachedFile{{Path: "index.html", Content: "<html></html>", Kind: domain.KindFile}}
	if err := s.Set(ctx, Entry{Fingerprint: "fp", ProjectID: pid, Response: "r1", Files: files}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	e, ok, err := s.Get(ctx, "fp")
	if err != nil || !ok || e.Response != "r1" || len(e.Files) != 1 || e.CreatedAt.IsZero() {
		t.Fatalf("memory hit unexpected: %+v ok=%v err=%v", e, ok, err)
	}

	// A fresh store over the same table serves from the backing tier.
	cold, _ := NewStore(db, 8, 0)
	e, ok, err = cold.Get(ctx, "fp")
	if err != nil || !ok || e.Files[0].Path != "index.html" || e.ProjectID != pid {
		t.Fatalf("store hit unexpected: %+v ok=%v err=%v", e, ok, err)
	}

	// Memory tier disabled still works.
	nomem, _ := NewStore(db, 0, 0)
	if _, ok, _ := nomem.Get(ctx, "fp"); !ok {
		t.Fatalf("expected hit without memory tier")
	}
}

func TestStore_MaxAge(t *testing.T) {
	db, pid := newCacheDB(t)
	ctx := context.Background()
	s, _ := NewStore(db, 8, time.Hour)
	if err := s.Set(ctx, Entry{Fingerprint: "fp", ProjectID: pid, Response: "r"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "fp"); !ok {
		t.Fatalf("fresh entry must hit")
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok, err := s.Get(ctx, "fp"); ok || err != nil {
		t.Fatalf("stale memory entry must miss, ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.Get(ctx, "fp"); ok || err != nil {
		t.Fatalf("stale stored entry must miss, ok=%v err=%v", ok, err)
	}
	n, err := s.Prune(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
}

func TestStore_ForgetProject(t *testing.T) {
	db, pid := newCacheDB(t)
	ctx := context.Background()
	s, _ := NewStore(db, 8, 0)
	_ = s.Set(ctx, Entry{Fingerprint: "fp", ProjectID: pid, Response: "r"})
	s.ForgetProject(pid)
	if s.mem.Contains("fp") {
		t.Fatalf("memory entry must be dropped")
	}
	if n, _ := s.Prune(ctx); n != 0 {
		t.Fatalf("Prune without max age is a no-op")
	}
}

func TestStore_SetFailureIsReported(t *testing.T) {
	db, _ := newCacheDB(t)
	s, _ := NewStore(db, 8, 0)
	// Unknown project violates the foreign key.
	if err := s.Set(context.Background(), Entry{Fingerprint: "fp", ProjectID: "missing", Response: "r"}); err == nil {
		t.Fatalf("expected write error")
	}
	if s.mem.Contains("fp") {
		t.Fatalf("failed writes must not reach the memory tier")
	}
}
