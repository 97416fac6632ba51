// Package handlers exposes the REST API of the project-generation backend.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services, and translate results into the response shapes the
// web client expects. Every route except the operational ones runs behind
// middleware.WalletAuth, so the caller's user id is taken from the Gin
// context.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/http/middleware"
	"github.com/tbourn/stelgent-backend/internal/services"
	"github.com/tbourn/stelgent-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AuthService resolves wallets and manages user settings.
type AuthService interface {
	Connect(ctx context.Context, publicKey string) (*domain.User, bool, error)
	VerifyFormat(publicKey string) (string, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
	SetOpenAIKey(ctx context.Context, userID, key string) (*domain.User, error)
}

// ProjectService manages a user's projects.
type ProjectService interface {
	Create(ctx context.Context, userID, name, description string) (*domain.Project, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Project, int64, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	Get(ctx context.Context, userID, projectID string) (*domain.Project, error)
	Delete(ctx context.Context, userID, projectID string) error
}

// FileService manages the files of a project.
type FileService interface {
	List(ctx context.Context, userID, projectID string) ([]domain.ProjectFile, error)
	Stats(ctx context.Context, projectID string) (int64, *time.Time, error)
	Create(ctx context.Context, userID, projectID, path, content, kind string) (*domain.ProjectFile, []services.Outcome, error)
	Update(ctx context.Context, userID, projectID, fileID string, newPath, content *string) error
	Delete(ctx context.Context, userID, projectID, fileID string) error
}

// ConversationService reads a project's history.
type ConversationService interface {
	ListPage(ctx context.Context, userID, projectID string, page, pageSize int) ([]domain.ConversationMessage, int64, error)
	Stats(ctx context.Context, projectID string) (int64, *time.Time, error)
}

// ChatService runs one chat turn.
type ChatService interface {
	Turn(ctx context.Context, userID, projectID, message string) (*services.TurnResult, error)
}

// DeployService manages project containers.
type DeployService interface {
	Deploy(ctx context.Context, userID, projectID string) (*services.DeployResult, error)
	Stop(ctx context.Context, userID, projectID string) error
	Status(ctx context.Context, userID, projectID string) (*services.ContainerStatus, error)
}

// ExportService publishes projects and mints them.
type ExportService interface {
	Export(ctx context.Context, userID, projectID string) (*services.ExportResult, error)
	ExportAndMint(ctx context.Context, userID, projectID, stellarAddress string) (*services.MintResult, error)
	MyNFTs(ctx context.Context, userID string) ([]services.NFTItem, error)
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers. Ping checks the database
// for /health.
type Services struct {
	Auth          AuthService
	Projects      ProjectService
	Files         FileService
	Conversations ConversationService
	Chat          ChatService
	Deploy        DeployService
	Export        ExportService
	Ping          func(ctx context.Context) error
}

// Handlers groups all HTTP endpoints.
type Handlers struct {
	auth     AuthService
	projects ProjectService
	files    FileService
	convs    ConversationService
	chat     ChatService
	deploy   DeployService
	export   ExportService
	ping     func(ctx context.Context) error
	now      func() time.Time
}

// New constructs Handlers bound to the given services.
func New(s Services) *Handlers {
	return &Handlers{
		auth:     s.Auth,
		projects: s.Projects,
		files:    s.Files,
		convs:    s.Conversations,
		chat:     s.Chat,
		deploy:   s.Deploy,
		export:   s.Export,
		ping:     s.Ping,
		now:      time.Now,
	}
}

//
// Shared DTOs and helpers
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, size int, total int64) Pagination {
	pages := utils.TotalPages(total, size)
	return Pagination{Page: page, PageSize: size, Total: total, TotalPages: pages, HasNext: page < pages}
}

// clampPagination parses page and page_size with the given default size.
func clampPagination(c *gin.Context, defaultSize int) (page, pageSize int) {
	const maxPageSize = 100
	return utils.PageParams(c.Query("page"), c.Query("page_size"), defaultSize, maxPageSize)
}

// uid returns the authenticated user id set by WalletAuth.
func uid(c *gin.Context) string { return middleware.UserID(c) }

// etagMatches sets a weak ETag derived from a collection's size and newest
// timestamp, and reports whether the client already holds it. The page
// parameters are part of the tag so different pages never collide.
func etagMatches(c *gin.Context, scope, owner string, count int64, maxTS *time.Time, page, size int) bool {
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d:%d:%d"`, scope, owner, count, ts, page, size)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
