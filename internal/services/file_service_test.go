package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

func TestFileService_Create(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, 1)
	p := seedProject(t, db, u.ID)
	s := &FileService{DB: db}
	ctx := context.Background()

	idx, _, err := s.Create(ctx, u.ID, p.ID, "index.html", "<html><head></head><body></body></html>", "")
	if err != nil || idx.Kind != domain.KindFile {
		t.Fatalf("create html: %+v %v", idx, err)
	}
	if _, outcomes, err := s.Create(ctx, u.ID, p.ID, "css/site.css", "body{}", domain.KindFile); err != nil || len(outcomes) != 0 {
		t.Fatalf("create css: %v %v", outcomes, err)
	}
	if got := fileByPath(t, db, p.ID, "index.html").Content; !strings.Contains(got, `href="css/site.css"`) {
		t.Fatalf("adding a stylesheet must relink html:\n%s", got)
	}

	dir, _, err := s.Create(ctx, u.ID, p.ID, "assets", "ignored", domain.KindFolder)
	if err != nil || dir.Path != "assets/" || dir.Kind != domain.KindFolder || dir.Content != "" {
		t.Fatalf("folder: %+v %v", dir, err)
	}
	slash, _, err := s.Create(ctx, u.ID, p.ID, "img/", "", "")
	if err != nil || slash.Kind != domain.KindFolder {
		t.Fatalf("trailing slash must make a folder: %+v %v", slash, err)
	}

	if _, _, err := s.Create(ctx, u.ID, p.ID, "index.html", "dup", ""); !errors.Is(err, ErrFileExists) {
		t.Fatalf("duplicate path: expected ErrFileExists, got %v", err)
	}
	for _, bad := range []struct{ path, kind string }{
		{"", ""},
		{"/etc/passwd", ""},
		{"../escape.txt", ""},
		{"ok.txt", "symlink"},
	} {
		if _, _, err := s.Create(ctx, u.ID, p.ID, bad.path, "x", bad.kind); !errors.Is(err, ErrInvalidFile) {
			t.Fatalf("%q/%q: expected ErrInvalidFile, got %v", bad.path, bad.kind, err)
		}
	}

	other := seedUser(t, db, 2)
	if _, _, err := s.Create(ctx, other.ID, p.ID, "x.txt", "x", ""); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("foreign project: expected ErrProjectNotFound, got %v", err)
	}
}

func TestFileService_UpdateAndDelete(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, 1)
	p := seedProject(t, db, u.ID)
	s := &FileService{DB: db}
	ctx := context.Background()

	a := seedFile(t, db, p.ID, "a.js", "a")
	seedFile(t, db, p.ID, "b.js", "b")
	dir := seedFile(t, db, p.ID, "lib/", "")

	content := "a2"
	if err := s.Update(ctx, u.ID, p.ID, a.ID, nil, &content); err != nil {
		t.Fatalf("update content: %v", err)
	}
	path := "src/a.js"
	if err := s.Update(ctx, u.ID, p.ID, a.ID, &path, nil); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got := fileByPath(t, db, p.ID, "src/a.js")
	if got.Content != "a2" {
		t.Fatalf("unexpected file after update: %+v", got)
	}

	taken := "b.js"
	if err := s.Update(ctx, u.ID, p.ID, a.ID, &taken, nil); !errors.Is(err, ErrFileExists) {
		t.Fatalf("rename onto existing path: expected ErrFileExists, got %v", err)
	}
	toFolder := "src/"
	if err := s.Update(ctx, u.ID, p.ID, a.ID, &toFolder, nil); !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("file renamed to folder: expected ErrInvalidFile, got %v", err)
	}
	folderContent := "nope"
	if err := s.Update(ctx, u.ID, p.ID, dir.ID, nil, &folderContent); err != nil {
		t.Fatalf("folder content update: %v", err)
	}
	if got := fileByPath(t, db, p.ID, "lib/").Content; got != "" {
		t.Fatalf("folders never hold content, got %q", got)
	}
	if err := s.Update(ctx, u.ID, p.ID, "missing", nil, &content); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("missing file: expected ErrFileNotFound, got %v", err)
	}

	if err := s.Delete(ctx, u.ID, p.ID, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, u.ID, p.ID, a.ID); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("second delete: expected ErrFileNotFound, got %v", err)
	}
	files, err := s.List(ctx, u.ID, p.ID)
	if err != nil || len(files) != 2 {
		t.Fatalf("List after delete: %d %v", len(files), err)
	}
}

func TestFileService_Stats(t *testing.T) {
	db := newSvcDB(t)
	ctx := context.Background()
	u := seedUser(t, db, 3)
	p := seedProject(t, db, u.ID)
	svc := &FileService{DB: db}

	n, ts, err := svc.Stats(ctx, p.ID)
	if err != nil || n != 0 || ts != nil {
		t.Fatalf("empty stats = %d %v %v", n, ts, err)
	}
	if _, _, err := svc.Create(ctx, u.ID, p.ID, "style.css", "body{}", domain.KindFile); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, ts, err = svc.Stats(ctx, p.ID)
	if err != nil || n != 1 || ts == nil {
		t.Fatalf("stats = %d %v %v", n, ts, err)
	}
}
