package services

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/repo"
	"github.com/tbourn/stelgent-backend/internal/wallet"
)

// newSvcDB opens a fresh file-backed database with the full schema.
func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"), repo.Options{LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// testKey returns a valid account key derived from seed.
func testKey(seed byte) string {
	var raw [32]byte
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return wallet.EncodePublicKey(raw)
}

func seedUser(t *testing.T, db *gorm.DB, seed byte) *domain.User {
	t.Helper()
	u, _, err := repo.FindOrCreateUser(context.Background(), db, testKey(seed))
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedProject(t *testing.T, db *gorm.DB, userID string) *domain.Project {
	t.Helper()
	p, err := repo.CreateProject(context.Background(), db, userID, "demo", "a demo project")
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}

func seedFile(t *testing.T, db *gorm.DB, projectID, path, content string) *domain.ProjectFile {
	t.Helper()
	kind := domain.KindFile
	if domain.IsFolderPath(path) {
		kind = domain.KindFolder
	}
	f, err := repo.CreateFile(context.Background(), db, projectID, path, content, kind)
	if err != nil {
		t.Fatalf("seed file %s: %v", path, err)
	}
	return f
}

func fileByPath(t *testing.T, db *gorm.DB, projectID, path string) *domain.ProjectFile {
	t.Helper()
	f, err := repo.GetFileByPath(context.Background(), db, projectID, path)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	return f
}
