// Package services – ConversationService
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/repo"
)

// ConversationService reads a project's append-only history.
type ConversationService struct {
	DB *gorm.DB
}

// ListPage returns a page of history, oldest first, plus the total.
func (s *ConversationService) ListPage(ctx context.Context, userID, projectID string, page, pageSize int) ([]domain.ConversationMessage, int64, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	if _, err := ownedProject(ctx, s.DB, userID, projectID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	total, err := repo.CountMessages(ctx, s.DB, projectID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ConversationMessage{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, projectID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Stats returns the message count and newest timestamp for ETag computation.
func (s *ConversationService) Stats(ctx context.Context, projectID string) (int64, *time.Time, error) {
	return repo.ConversationStats(ctx, s.DB, projectID)
}
