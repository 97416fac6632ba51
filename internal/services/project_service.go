// Package services – ProjectService
//
// Projects are owned by a single user; every lookup is scoped by owner so a
// foreign project is indistinguishable from a missing one.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/repo"
)

// CacheForgetter drops in-memory cache entries of a deleted project.
type CacheForgetter interface {
	ForgetProject(projectID string)
}

// ProjectService implements project CRUD.
type ProjectService struct {
	DB    *gorm.DB
	Cache CacheForgetter

	// NameMaxLen caps names by rune length.
	NameMaxLen int
}

// NewProjectService constructs a ProjectService with default limits.
func NewProjectService(db *gorm.DB, cache CacheForgetter) *ProjectService {
	return &ProjectService{DB: db, Cache: cache, NameMaxLen: 200}
}

// Create inserts a new project for userID. Names are whitespace-normalized
// and must be 1..NameMaxLen runes.
func (s *ProjectService) Create(ctx context.Context, userID, name, description string) (*domain.Project, error) {
	ctx, span := otel.Tracer("services/ProjectService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	name = normalizeName(name)
	if name == "" || (s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen) {
		return nil, ErrInvalidProjectName
	}
	p, err := repo.CreateProject(ctx, s.DB, userID, name, strings.TrimSpace(description))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("project.id", p.ID))
	return p, nil
}

// ListPage returns a page of the user's projects, newest first, plus the total.
func (s *ProjectService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Project, int64, error) {
	ctx, span := otel.Tracer("services/ProjectService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountProjects(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Project{}, 0, nil
	}
	items, err := repo.ListProjectsPage(ctx, s.DB, userID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Stats returns the project count and latest update for ETag computation.
func (s *ProjectService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.ProjectsStats(ctx, s.DB, userID)
}

// Get returns the project if userID owns it.
func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	return ownedProject(ctx, s.DB, userID, projectID)
}

// Delete removes the project with its files, history, cache rows and mint record.
func (s *ProjectService) Delete(ctx context.Context, userID, projectID string) error {
	ctx, span := otel.Tracer("services/ProjectService").Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	if err := repo.DeleteProject(ctx, s.DB, projectID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	if s.Cache != nil {
		s.Cache.ForgetProject(projectID)
	}
	return nil
}

// ownedProject loads a project scoped by owner, mapping absence to ErrProjectNotFound.
func ownedProject(ctx context.Context, db *gorm.DB, userID, projectID string) (*domain.Project, error) {
	p, err := repo.GetProject(ctx, db, projectID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	return p, err
}

// normalizeName trims whitespace and collapses runs of it to one space.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var whitespaceRE = regexp.MustCompile(`\s+`)
