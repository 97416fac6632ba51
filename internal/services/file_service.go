// Package services – FileService
//
// Manual file management for a project. Generated files go through the chat
// turn instead; both paths keep HTML documents linked to the project's
// stylesheets and scripts.
package services

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/htmlpatch"
	"github.com/tbourn/stelgent-backend/internal/repo"
)

// FileService implements file CRUD within a project.
type FileService struct {
	DB *gorm.DB
}

// List returns all files of a project in creation order.
func (s *FileService) List(ctx context.Context, userID, projectID string) ([]domain.ProjectFile, error) {
	if _, err := ownedProject(ctx, s.DB, userID, projectID); err != nil {
		return nil, err
	}
	return repo.ListFiles(ctx, s.DB, projectID)
}

// Stats returns the file count and latest modification of a project.
func (s *FileService) Stats(ctx context.Context, projectID string) (int64, *time.Time, error) {
	return repo.FilesStats(ctx, s.DB, projectID)
}

// Create adds a file or folder. A trailing slash or kind "folder" makes a
// folder, whose content is dropped. HTML documents of the project are
// re-linked afterwards; failures there are reported as outcomes.
func (s *FileService) Create(ctx context.Context, userID, projectID, filePath, content, kind string) (*domain.ProjectFile, []Outcome, error) {
	ctx, span := otel.Tracer("services/FileService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	if _, err := ownedProject(ctx, s.DB, userID, projectID); err != nil {
		return nil, nil, err
	}
	filePath, kind, err := normalizeFile(filePath, kind)
	if err != nil {
		return nil, nil, err
	}
	if kind == domain.KindFolder {
		content = ""
	}

	f, err := repo.CreateFile(ctx, s.DB, projectID, filePath, content, kind)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, nil, ErrFileExists
	}
	if err != nil {
		return nil, nil, err
	}

	outcomes := relinkHTML(ctx, s.DB, projectID)
	logOutcomes(zerolog.Ctx(ctx), outcomes)
	_ = repo.TouchProject(ctx, s.DB, projectID)
	return f, outcomes, nil
}

// Update changes a file's path and/or content. Renaming onto a taken path
// yields ErrFileExists; a rename may not turn a file into a folder or back.
func (s *FileService) Update(ctx context.Context, userID, projectID, fileID string, newPath, content *string) error {
	ctx, span := otel.Tracer("services/FileService").Start(ctx, "Update",
		trace.WithAttributes(attribute.String("project.id", projectID), attribute.String("file.id", fileID)))
	defer span.End()

	if _, err := ownedProject(ctx, s.DB, userID, projectID); err != nil {
		return err
	}
	cur, err := repo.GetFile(ctx, s.DB, projectID, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrFileNotFound
	}
	if err != nil {
		return err
	}
	if newPath != nil {
		p, kind, err := normalizeFile(*newPath, cur.Kind)
		if err != nil || kind != cur.Kind {
			return ErrInvalidFile
		}
		newPath = &p
	}
	if content != nil && cur.Kind == domain.KindFolder {
		empty := ""
		content = &empty
	}

	err = repo.UpdateFile(ctx, s.DB, projectID, fileID, newPath, content)
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		return ErrFileExists
	case errors.Is(err, repo.ErrNotFound):
		return ErrFileNotFound
	case err != nil:
		return err
	}
	_ = repo.TouchProject(ctx, s.DB, projectID)
	return nil
}

// Delete removes one file.
func (s *FileService) Delete(ctx context.Context, userID, projectID, fileID string) error {
	if _, err := ownedProject(ctx, s.DB, userID, projectID); err != nil {
		return err
	}
	err := repo.DeleteFile(ctx, s.DB, projectID, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrFileNotFound
	}
	if err == nil {
		_ = repo.TouchProject(ctx, s.DB, projectID)
	}
	return err
}

// normalizeFile trims the path, rejects absolute or escaping paths, and
// reconciles the kind with the trailing-slash convention.
func normalizeFile(p, kind string) (string, string, error) {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") {
		return "", "", ErrInvalidFile
	}
	for _, seg := range strings.Split(strings.TrimSuffix(p, "/"), "/") {
		if seg == ".." {
			return "", "", ErrInvalidFile
		}
	}
	switch strings.TrimSpace(kind) {
	case "", domain.KindFile:
		if domain.IsFolderPath(p) {
			return p, domain.KindFolder, nil
		}
		return path.Clean(p), domain.KindFile, nil
	case domain.KindFolder:
		if !domain.IsFolderPath(p) {
			p += "/"
		}
		return p, domain.KindFolder, nil
	default:
		return "", "", ErrInvalidFile
	}
}

// relinkHTML re-patches every HTML file of a project against the current
// file set and stores the ones that changed.
func relinkHTML(ctx context.Context, db *gorm.DB, projectID string) []Outcome {
	files, err := repo.ListFiles(ctx, db, projectID)
	if err != nil {
		return []Outcome{{Step: StepHTMLPatch, Target: projectID, Err: err}}
	}
	siblings := make([]string, 0, len(files))
	for _, f := range files {
		if f.Kind == domain.KindFile {
			siblings = append(siblings, f.Path)
		}
	}

	var outcomes []Outcome
	for _, f := range files {
		if f.Kind != domain.KindFile || !strings.HasSuffix(f.Path, ".html") {
			continue
		}
		patched := htmlpatch.Patch(f.Content, siblings)
		if patched == f.Content {
			continue
		}
		if err := repo.UpdateFileContent(ctx, db, f.ID, patched); err != nil {
			outcomes = append(outcomes, Outcome{Step: StepHTMLPatch, Target: f.Path, Err: err})
			continue
		}
		zerolog.Ctx(ctx).Debug().Str("path", f.Path).Msg("relinked html references")
	}
	return outcomes
}
