// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// append-only conversation history of a project.
//
// Ordering is (created_at, id) ascending everywhere; messages are never
// updated once written.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// AppendMessage inserts a conversation entry. clarifyField is set only on
// assistant messages that ask a clarifying question.
func AppendMessage(ctx context.Context, db *gorm.DB, projectID, role, content string, clarifyField *string) (*domain.ConversationMessage, error) {
	m := &domain.ConversationMessage{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		Role:         role,
		Content:      content,
		ClarifyField: clarifyField,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListRecentMessages returns the last limit messages of a project, oldest first.
func ListRecentMessages(ctx context.Context, db *gorm.DB, projectID string, limit int) ([]domain.ConversationMessage, error) {
	if limit <= 0 {
		return []domain.ConversationMessage{}, nil
	}
	var out []domain.ConversationMessage
	err := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListUserMessages returns every user-authored message of a project, oldest first.
func ListUserMessages(ctx context.Context, db *gorm.DB, projectID string) ([]domain.ConversationMessage, error) {
	var out []domain.ConversationMessage
	err := db.WithContext(ctx).
		Where("project_id = ? AND role = ?", projectID, domain.RoleUser).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// LastClarification returns the most recent assistant message carrying a
// clarify field, or ErrNotFound when none was ever asked.
func LastClarification(ctx context.Context, db *gorm.DB, projectID string) (*domain.ConversationMessage, error) {
	var m domain.ConversationMessage
	err := db.WithContext(ctx).
		Where("project_id = ? AND role = ? AND clarify_field IS NOT NULL", projectID, domain.RoleAssistant).
		Order("created_at desc, id desc").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns the number of messages stored for a project.
func CountMessages(ctx context.Context, db *gorm.DB, projectID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationMessage{}).
		Where("project_id = ?", projectID).
		Count(&total).Error
	return total, err
}

// ListMessagesPage returns a page of a project's history, oldest first.
func ListMessagesPage(ctx context.Context, db *gorm.DB, projectID string, offset, limit int) ([]domain.ConversationMessage, error) {
	var out []domain.ConversationMessage
	err := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at asc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListAllMessages returns the full history of a project, oldest first.
func ListAllMessages(ctx context.Context, db *gorm.DB, projectID string) ([]domain.ConversationMessage, error) {
	var out []domain.ConversationMessage
	err := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}
