// Command stelgent runs the project-generation API server.
//
// Usage:
//
//	stelgent serve     # migrate the database (unless SKIP_MIGRATIONS) and serve HTTP
//	stelgent migrate   # apply schema migrations and exit
//
// Configuration is read from the environment; a .env file in the working
// directory is loaded first when present.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/stelgent-backend/internal/cache"
	"github.com/tbourn/stelgent-backend/internal/config"
	"github.com/tbourn/stelgent-backend/internal/container"
	httpapi "github.com/tbourn/stelgent-backend/internal/http"
	"github.com/tbourn/stelgent-backend/internal/ipfs"
	"github.com/tbourn/stelgent-backend/internal/ledger"
	"github.com/tbourn/stelgent-backend/internal/llm"
	"github.com/tbourn/stelgent-backend/internal/observability"
	"github.com/tbourn/stelgent-backend/internal/repo"
	"github.com/tbourn/stelgent-backend/internal/services"
	"github.com/tbourn/stelgent-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 15 * time.Second
	pruneInterval   = time.Hour
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "stelgent",
	Short:         "Stelgent API server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the database and serve the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		db, err := openDB(cfg, true)
		if err != nil {
			return err
		}
		log.Info().Str("db", cfg.DBPath).Msg("migrations applied")
		return closeDB(db)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("stelgent failed")
		os.Exit(1)
	}
}

// setup loads configuration and installs the global logger.
func setup() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	log.Logger = sysutil.NewLogger(os.Stdout, cfg.LogPretty)
	zerolog.DefaultContextLogger = &log.Logger
	sysutil.SetLogLevel(cfg.LogLevel)
	return cfg, nil
}

func openDB(cfg config.Config, migrate bool) (*gorm.DB, error) {
	lvl := logger.Warn
	if cfg.LogLevel == "debug" {
		lvl = logger.Info
	}
	db, err := repo.OpenSQLite(cfg.DBPath, repo.Options{Tracing: cfg.OTEL.Enabled, LogLevel: lvl})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if !migrate {
		return db, nil
	}
	if err := repo.AutoMigrate(db); err != nil {
		_ = closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ver := sysutil.FirstNonEmpty(os.Getenv("SERVICE_VERSION"), version)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		shutdownOTel = func(context.Context) error { return nil }
	}

	db, err := openDB(cfg, !sysutil.IsTruthy(os.Getenv("SKIP_MIGRATIONS")))
	if err != nil {
		return err
	}
	defer closeDB(db)

	store, err := cache.NewStore(db, cfg.Cache.LRUSize, cfg.Cache.MaxAge)
	if err != nil {
		return err
	}

	deps := httpapi.Deps{
		DB:        db,
		Cache:     store,
		Completer: llm.NewOpenAIClient(cfg.OpenAI),
		Store:     ipfs.New(cfg.IPFS),
		Minter:    ledger.NewSorobanMinter(cfg.Soroban),
	}
	if cfg.OpenAI.APIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set; chat requires a per-user key")
	} else {
		log.Info().Str("openai_api_key", sysutil.MaskSecret(cfg.OpenAI.APIKey)).Str("model", cfg.OpenAI.Model).Msg("completion client ready")
	}

	if cfg.Docker.Enabled {
		closeDocker, err := wireDocker(ctx, cfg, db, &deps)
		if err != nil {
			log.Warn().Err(err).Msg("docker unavailable; deploy endpoints disabled")
		} else {
			defer closeDocker()
		}
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	if err := httpapi.RegisterRoutes(r, deps, cfg); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return log.Logger.WithContext(context.Background()) },
	}

	g, gctx := errgroup.WithContext(ctx)
	if startPruner(gctx, g, store, cfg.Cache.MaxAge) {
		log.Debug().Dur("max_age", cfg.Cache.MaxAge).Msg("cache pruning enabled")
	}
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Str("version", ver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		if err := shutdownOTel(sctx); err != nil {
			log.Error().Err(err).Msg("otel shutdown")
		}
		return nil
	})
	return g.Wait()
}

// wireDocker connects to the engine and re-reserves ports of containers that
// were running before the restart.
func wireDocker(ctx context.Context, cfg config.Config, db *gorm.DB, deps *httpapi.Deps) (func() error, error) {
	ports, err := container.NewPortAllocator(cfg.Docker.PortMin, cfg.Docker.PortMax)
	if err != nil {
		return nil, err
	}
	rt, closeFn, err := container.NewDockerRuntime(ports, cfg.Docker.PublicHost)
	if err != nil {
		return nil, err
	}
	n, err := (&services.DeployService{DB: db, Runtime: rt}).RestorePorts(ctx, ports)
	if err != nil {
		log.Warn().Err(err).Msg("restore deployed ports")
	}
	log.Info().Int("restored_ports", n).Int("port_min", cfg.Docker.PortMin).Int("port_max", cfg.Docker.PortMax).Msg("docker runtime ready")
	deps.Runtime = rt
	return closeFn, nil
}

// startPruner runs pruneCache on g when cached entries can expire.
func startPruner(ctx context.Context, g *errgroup.Group, store *cache.Store, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	g.Go(func() error {
		pruneCache(ctx, store)
		return nil
	})
	return true
}

// pruneCache drops expired completion rows until ctx is cancelled.
func pruneCache(ctx context.Context, store *cache.Store) {
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.Prune(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("cache prune failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("cache pruned")
			}
		}
	}
}
