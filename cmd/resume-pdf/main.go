package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"resume-pdf/internal/assets"
	"resume-pdf/internal/compose"
	"resume-pdf/internal/config"
	"resume-pdf/internal/http/server"
	"resume-pdf/internal/infra/cache"
	"resume-pdf/internal/infra/chrome"
	"resume-pdf/internal/infra/logging"
	"resume-pdf/internal/infra/postgres"
	"resume-pdf/internal/metrics"
	"resume-pdf/internal/pdfgen"
	"resume-pdf/internal/render"
)

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg := config.Load()
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	logging.SetLogLevel(cfg.Logger.Level)

	app, cleanup := buildApp(cfg)
	defer cleanup()

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// buildApp wires the optional backends and the render pipeline. Backends that
// fail to come up are logged and left out; the service still renders without
// them. The returned func releases everything that was opened.
func buildApp(cfg config.Config) (*fiber.App, func()) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	rec := metrics.NewRecorder(nil)

	var pdfCache *cache.PDFCache
	if cfg.Cache.PDFCacheEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.PDFCacheDB,
		})
		closers = append(closers, func() { _ = rdb.Close() })
		pdfCache = cache.NewPDFCache(rdb, cfg.Cache.PDFCacheTTL)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := pdfCache.Ping(ctx); err != nil {
			logging.Warn("PDF cache unreachable, continuing without hits until it recovers", "addr", cfg.Cache.RedisHost, "error", err)
		}
		cancel()
	}

	var pool *chrome.Pool
	if cfg.PDF.ChromePoolSize > 0 {
		p, err := chrome.NewPool(cfg)
		if err != nil {
			logging.Error("Chrome pool disabled", "error", err)
		} else {
			pool = p
			closers = append(closers, pool.Close)
		}
	}

	var renderLog *postgres.RenderLog
	if cfg.Audit.Enabled {
		renderLog = openRenderLog(cfg.Audit.Postgres, &closers)
	}

	resolver := assets.NewResolver(cfg.Assets.Roots, cfg.Assets.Template, cfg.Assets.Stylesheet)
	composer := compose.NewComposer(
		compose.NewRewriter(cfg.Compose.LogoFiles, cfg.Compose.ImageExtensions),
		cfg.Compose.StrictMarkers,
	)
	engine := chrome.NewEngine(cfg, pool)

	svc := &pdfgen.Service{
		Assets:      resolver,
		Composer:    composer,
		Renderer:    render.NewRenderer(engine, render.TiersFromConfig(cfg), rec),
		Cache:       pdfCache,
		Metrics:     rec,
		BaseURL:     cfg.Server.BaseURL,
		MaxPDFBytes: cfg.Limits.MaxPDFBytes,
	}

	app := server.New(server.Deps{
		Config:    cfg,
		Generator: svc,
		Pool:      pool,
		Audit:     renderLog,
		Metrics:   rec,
	})
	return app, cleanup
}

func openRenderLog(pg config.PostgresConfig, closers *[]func()) *postgres.RenderLog {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, pg)
	if err != nil {
		logging.Error("Render audit log disabled", "error", err)
		return nil
	}
	*closers = append(*closers, func() { closeDB(db) })

	l := postgres.NewRenderLog(db)
	if err := l.EnsureSchema(ctx); err != nil {
		logging.Error("Failed to prepare render_log table", "error", err)
	}
	return l
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		logging.Warn("Closing audit database failed", "error", err)
	}
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	addr := cfg.Server.Host + cfg.Server.Port
	go func() {
		if err := app.Listen(addr); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()
	logging.Info("Resume PDF service listening",
		"addr", addr,
		"health", "http://localhost"+cfg.Server.Port+"/health",
		"base_url", cfg.Server.BaseURL,
	)

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
