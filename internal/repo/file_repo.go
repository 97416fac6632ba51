// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for ProjectFile.
//
// Path uniqueness per project is backed by the ux_project_path index; a
// violating insert or rename is returned as ErrDuplicate.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// ListFiles returns every file of a project in creation order.
func ListFiles(ctx context.Context, db *gorm.DB, projectID string) ([]domain.ProjectFile, error) {
	var out []domain.ProjectFile
	err := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// GetFile fetches a file by ID within a project, or ErrNotFound.
func GetFile(ctx context.Context, db *gorm.DB, projectID, id string) (*domain.ProjectFile, error) {
	var f domain.ProjectFile
	err := db.WithContext(ctx).
		Where("id = ? AND project_id = ?", id, projectID).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFileByPath fetches a file by its (project, path) key, or ErrNotFound.
func GetFileByPath(ctx context.Context, db *gorm.DB, projectID, path string) (*domain.ProjectFile, error) {
	var f domain.ProjectFile
	err := db.WithContext(ctx).
		Where("project_id = ? AND path = ?", projectID, path).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFile inserts a file row. Returns ErrDuplicate if the path is taken.
func CreateFile(ctx context.Context, db *gorm.DB, projectID, path, content, kind string) (*domain.ProjectFile, error) {
	now := time.Now().UTC()
	f := &domain.ProjectFile{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Path:      path,
		Content:   content,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return f, nil
}

// UpdateFileContent overwrites the content of a file in place.
func UpdateFileContent(ctx context.Context, db *gorm.DB, id, content string) error {
	res := db.WithContext(ctx).
		Model(&domain.ProjectFile{}).
		Where("id = ?", id).
		Updates(map[string]any{"content": content, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFile applies an optional path and/or content change. A nil field is
// left untouched. Returns ErrDuplicate when the new path collides.
func UpdateFile(ctx context.Context, db *gorm.DB, projectID, id string, path, content *string) error {
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if path != nil {
		fields["path"] = *path
	}
	if content != nil {
		fields["content"] = *content
	}
	res := db.WithContext(ctx).
		Model(&domain.ProjectFile{}).
		Where("id = ? AND project_id = ?", id, projectID).
		Updates(fields)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFile removes one file from a project.
func DeleteFile(ctx context.Context, db *gorm.DB, projectID, id string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND project_id = ?", id, projectID).
		Delete(&domain.ProjectFile{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
