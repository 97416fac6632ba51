// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, wallet authentication, idempotent
// chat turns, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/stelgent-backend/docs" // registers the OpenAPI document
	"github.com/tbourn/stelgent-backend/internal/cache"
	"github.com/tbourn/stelgent-backend/internal/clarify"
	"github.com/tbourn/stelgent-backend/internal/config"
	"github.com/tbourn/stelgent-backend/internal/container"
	"github.com/tbourn/stelgent-backend/internal/http/handlers"
	"github.com/tbourn/stelgent-backend/internal/http/middleware"
	"github.com/tbourn/stelgent-backend/internal/ledger"
	"github.com/tbourn/stelgent-backend/internal/llm"
	"github.com/tbourn/stelgent-backend/internal/repo"
	"github.com/tbourn/stelgent-backend/internal/services"
)

// maxBodyBytes caps request bodies; file uploads are the largest payloads.
const maxBodyBytes = 4 << 20

// Deps are the collaborators the routes are built from. Completer, Runtime,
// Store and Minter may be nil; the affected endpoints then report their
// service as unavailable.
type Deps struct {
	DB        *gorm.DB
	Cache     *cache.Store
	Completer llm.Completer
	Runtime   container.Runtime
	Store     services.ContentStore
	Minter    ledger.Minter
}

// idempotencyStore persists recorded chat responses in the idempotency table.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Load proxies repo.GetIdempotency; a missing or expired record is not an error.
func (s idempotencyStore) Load(ctx context.Context, userID, projectID, key string) (*middleware.Recorded, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, projectID, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &middleware.Recorded{Status: rec.Status, Body: rec.Response}, nil
}

// Save proxies repo.CreateIdempotency. A concurrent duplicate already holds
// an equivalent response.
func (s idempotencyStore) Save(ctx context.Context, userID, projectID, key string, rec middleware.Recorded) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, projectID, key, rec.Body, rec.Status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// walletResolver adapts AuthService.Resolve to the middleware contract.
func walletResolver(auth *services.AuthService) middleware.WalletResolver {
	return func(ctx context.Context, publicKey string) (string, string, error) {
		u, err := auth.Resolve(ctx, publicKey)
		switch {
		case errors.Is(err, services.ErrInvalidPublicKey):
			return "", "", middleware.ErrBadCredential
		case errors.Is(err, services.ErrUserNotFound):
			return "", "", middleware.ErrUnknownWallet
		case err != nil:
			return "", "", err
		}
		return u.ID, u.PublicKey, nil
	}
}

// newServices builds the application services from deps and cfg.
func newServices(d Deps, cfg config.Config, auth *services.AuthService) handlers.Services {
	var classifier *clarify.Classifier
	if d.Completer != nil && cfg.OpenAI.ClassifierEnabled {
		classifier = clarify.NewClassifier(d.Completer, cfg.OpenAI.Model, cfg.OpenAI.ClassifierRetries)
	}

	chat := services.NewChatService(d.DB, classifier, d.Completer, d.Cache)
	chat.Model = cfg.OpenAI.Model
	chat.MaxTokens = cfg.OpenAI.MaxTokens
	chat.Temperature = llm.Float32(cfg.OpenAI.Temperature)
	chat.MaxRetries = cfg.OpenAI.MaxRetries
	if cfg.Chat.HistoryLimit > 0 {
		chat.HistoryLimit = cfg.Chat.HistoryLimit
	}
	if cfg.Chat.SnippetRunes > 0 {
		chat.SnippetRunes = cfg.Chat.SnippetRunes
	}
	if cfg.Chat.MaxMessageRunes > 0 {
		chat.MaxMessageRunes = cfg.Chat.MaxMessageRunes
	}

	return handlers.Services{
		Auth:          auth,
		Projects:      services.NewProjectService(d.DB, d.Cache),
		Files:         &services.FileService{DB: d.DB},
		Conversations: &services.ConversationService{DB: d.DB},
		Chat:          chat,
		Deploy:        &services.DeployService{DB: d.DB, Runtime: d.Runtime},
		Export:        &services.ExportService{DB: d.DB, Store: d.Store, Minter: d.Minter},
		Ping: func(ctx context.Context) error {
			sqlDB, err := d.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. ContextLogger: request-scoped logger on the Gin and request contexts
//  4. RedactingLogger: access log with key and header scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. gzip, CORS and security headers
//
// Inside the API, WalletAuth guards everything except wallet connect/verify.
// The chat route runs Idempotent before the rate limiter so that replays
// cost no tokens.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) error {
	if d.DB == nil {
		return errors.New("httpapi: nil database")
	}
	if d.Cache == nil {
		c, err := cache.NewStore(d.DB, cfg.Cache.LRUSize, cfg.Cache.MaxAge)
		if err != nil {
			return err
		}
		d.Cache = c
	}

	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.ContextLogger())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			middleware.HeaderPublicKey, middleware.HeaderIdempotencyKey, "If-None-Match",
		},
		ExposeHeaders: []string{
			"X-Request-ID", "Content-Length", "ETag", "Retry-After", middleware.HeaderIdempotencyReplayed,
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	apiBase := cfg.APIBasePath
	if apiBase == "/" {
		apiBase = ""
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{apiBase + "/auth", apiBase + "/settings"},
		EnablePolicy:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authSvc := &services.AuthService{DB: d.DB}
	h := handlers.New(newServices(d, cfg, authSvc))

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	rl := middleware.NewRateLimiter("api", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	idem := middleware.Idempotent(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyStore{db: d.DB, ttl: cfg.IdempotencyTTL})
	auth := middleware.WalletAuth(walletResolver(authSvc))

	api := groupWithPrefix(r, apiBase)
	{
		public := api.Group("", rl.Handler())
		public.POST("/auth/wallet/connect", h.WalletConnect)
		public.POST("/auth/wallet/verify", h.WalletVerify)

		protected := api.Group("", auth)

		// Chat turns: replay first, then spend a token.
		protected.POST("/projects/:id/chat", idem, rl.Handler(), h.Chat)

		limited := protected.Group("", rl.Handler())
		limited.GET("/auth/me", h.Me)
		limited.PUT("/settings/openai", h.UpdateOpenAISettings)

		limited.POST("/projects", h.CreateProject)
		limited.GET("/projects", h.ListProjects)
		limited.GET("/projects/:id", h.GetProject)
		limited.DELETE("/projects/:id", h.DeleteProject)

		limited.GET("/projects/:id/files", h.ListFiles)
		limited.POST("/projects/:id/files", h.CreateFile)
		limited.PUT("/projects/:id/files/:file_id", h.UpdateFile)
		limited.DELETE("/projects/:id/files/:file_id", h.DeleteFile)

		limited.GET("/projects/:id/conversations", h.ListConversations)

		limited.POST("/projects/:id/deploy", h.DeployProject)
		limited.DELETE("/projects/:id/deploy", h.StopDeployment)
		limited.GET("/projects/:id/container-status", h.ContainerStatus)

		limited.POST("/projects/:id/export", h.ExportProject)
		limited.POST("/projects/:id/export-and-mint", h.ExportAndMint)
		limited.GET("/nfts/my", h.MyNFTs)
	}
	return nil
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
