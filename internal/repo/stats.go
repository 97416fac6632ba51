// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (weak ETags) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// ProjectsStats returns the number of a user's projects and the greatest
// UpdatedAt among them (nil when the user has none).
func ProjectsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	return tableStats(ctx, db.WithContext(ctx).Model(&domain.Project{}).Where("user_id = ?", userID), "updated_at")
}

// FilesStats returns the number of files in a project and the greatest UpdatedAt.
func FilesStats(ctx context.Context, db *gorm.DB, projectID string) (count int64, maxUpdatedAt *time.Time, err error) {
	return tableStats(ctx, db.WithContext(ctx).Model(&domain.ProjectFile{}).Where("project_id = ?", projectID), "updated_at")
}

// ConversationStats returns the number of messages in a project and the
// CreatedAt of the newest one (history is append-only).
func ConversationStats(ctx context.Context, db *gorm.DB, projectID string) (count int64, maxCreatedAt *time.Time, err error) {
	return tableStats(ctx, db.WithContext(ctx).Model(&domain.ConversationMessage{}).Where("project_id = ?", projectID), "created_at")
}

func tableStats(_ context.Context, q *gorm.DB, column string) (int64, *time.Time, error) {
	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest timestamp (avoid MAX() -> TEXT in SQLite)
	var row struct {
		At time.Time
	}
	if err := q.Session(&gorm.Session{}).Select(column + " AS at").Order(column + " DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.At, nil
}
