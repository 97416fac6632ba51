// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Project model.
//
// Functions:
//
//   - CreateProject(ctx, db, userID, name, description) -> *domain.Project, error
//   - ListProjectsPage(ctx, db, userID, offset, limit) -> []domain.Project, error
//   - CountProjects(ctx, db, userID) -> int64, error
//   - GetProject(ctx, db, id, userID) -> *domain.Project, error
//   - DeleteProject(ctx, db, id, userID) -> error
//   - SetProjectContainer / ClearProjectContainer: deployment bookkeeping.
//
// Ownership is enforced by scoping every lookup to userID.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// CreateProject inserts a new Project owned by userID.
func CreateProject(ctx context.Context, db *gorm.DB, userID, name, description string) (*domain.Project, error) {
	now := time.Now().UTC()
	p := &domain.Project{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// CountProjects returns the number of projects owned by userID.
func CountProjects(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListProjectsPage returns a page of userID's projects, newest first.
func ListProjectsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Project, error) {
	var out []domain.Project
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetProject fetches a project by ID and owner, or ErrNotFound.
func GetProject(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Project, error) {
	var p domain.Project
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProjectsByID loads the given projects keyed by ID. Missing IDs are absent
// from the result.
func ProjectsByID(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Project, error) {
	out := make(map[string]domain.Project, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Project
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// DeleteProject removes a project and everything it owns in one transaction.
// Child rows are deleted explicitly so the operation does not depend on the
// connection having foreign-key enforcement enabled.
func DeleteProject(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p domain.Project
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&p).Error; err != nil {
			return err
		}
		for _, child := range []any{&domain.ProjectFile{}, &domain.ConversationMessage{}, &domain.CachedCompletion{}, &domain.MintRecord{}} {
			if err := tx.Where("project_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("project_id = ?", id).Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Project{}, "id = ?", id).Error
	})
}

// SetProjectContainer records a running deployment on the project.
func SetProjectContainer(ctx context.Context, db *gorm.DB, id, containerID string, port int, url string) error {
	status := domain.ContainerRunning
	res := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"container_id":     containerID,
			"container_port":   port,
			"container_url":    url,
			"container_status": status,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearProjectContainer drops the deployment fields and stores status
// (domain.ContainerStopped or domain.ContainerNotFound).
func ClearProjectContainer(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"container_id":     nil,
			"container_port":   nil,
			"container_url":    nil,
			"container_status": status,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchProject bumps UpdatedAt so list ETags change when children change.
func TouchProject(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

// ListDeployedProjects returns every project that currently records a
// container, across all users.
func ListDeployedProjects(ctx context.Context, db *gorm.DB) ([]domain.Project, error) {
	var out []domain.Project
	err := db.WithContext(ctx).
		Where("container_id IS NOT NULL AND container_port IS NOT NULL").
		Find(&out).Error
	return out, err
}
