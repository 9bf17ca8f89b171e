package server

import (
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"resume-pdf/internal/config"
	"resume-pdf/internal/http/handlers"
	"resume-pdf/internal/http/middleware"
	"resume-pdf/internal/infra/chrome"
	"resume-pdf/internal/infra/logging"
	"resume-pdf/internal/infra/postgres"
	"resume-pdf/internal/metrics"
)

// Deps are the collaborators the HTTP surface is built from. Everything
// except Config and Generator is optional.
type Deps struct {
	Config    config.Config
	Generator handlers.Generator
	Pool      *chrome.Pool
	Audit     *postgres.RenderLog
	Metrics   *metrics.Recorder
}

// New builds the fiber app with middleware, routes and a JSON 404.
func New(d Deps) *fiber.App {
	cfg := d.Config

	bodyLimit := cfg.BodyLimit()
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, cfg)
	registerRoutes(app, d)

	if dir := cfg.Server.StaticDir; dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			app.Static("/", dir)
		}
	}

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

func registerRoutes(app *fiber.App, d Deps) {
	cfg := d.Config

	var audit handlers.AuditRecorder
	var history handlers.RenderHistory
	if d.Audit != nil {
		audit, history = d.Audit, d.Audit
	}

	gen := handlers.NewGenerateHandler(d.Generator, cfg.Limits.MaxHTMLBytes, audit, d.Metrics)

	app.Get("/", handlers.Info)
	app.Get("/health", handlers.Health)
	app.Get("/api/test", handlers.Live)
	app.Post("/generate-pdf", gen.Handle)

	ops := app.Group("/ops")
	ops.Get("/chrome/stats", handlers.ChromeStats(d.Pool, cfg.PDF.ChromePoolSize))
	ops.Get("/renders", handlers.RecentRenders(history))
	ops.Get("/monitor", monitor.New(monitor.Config{Title: "resume-pdf"}))

	if cfg.Metrics.Enabled && d.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(d.Metrics.Handler()))
	}
}

// errorHandler renders every error as {"error": message}. Unknown errors are
// reported as a generic 500 so internals never reach the client.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	} else {
		logging.Error("Unhandled request error", "path", c.Path(), "error", err)
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
