package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"resume-pdf/internal/config"
	"resume-pdf/internal/infra/logging"
	"resume-pdf/internal/infra/ratelimit"
)

// Register attaches the global middleware chain to app.
func Register(app *fiber.App, cfg config.Config) {
	app.Use(recover.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	app.Use(healthcheck.New())

	if cfg.RateLimiter.UserLimit > 0 {
		store := ratelimit.NewStore(ratelimit.RedisConfig{Addr: cfg.Cache.RedisHost, DB: cfg.Cache.RateLimitDB})
		app.Use(userRateLimit(cfg, store))
	}

	app.Use(func(c *fiber.Ctx) error {
		requestID := c.GetRespHeader(fiber.HeaderXRequestID)
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	})
}

// corsConfig locks CORS to the configured origins. Credentials are only
// allowed with an explicit list; an empty list allows every origin without
// them.
func corsConfig(origins []string) cors.Config {
	cleaned := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" && o != "*" {
			cleaned = append(cleaned, o)
		}
	}
	c := cors.Config{
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization,X-Requested-With",
	}
	if len(cleaned) == 0 {
		c.AllowOrigins = "*"
		return c
	}
	c.AllowOrigins = strings.Join(cleaned, ",")
	c.AllowCredentials = true
	return c
}

func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return hex.EncodeToString(sum[:])
}

// userRateLimit limits requests per client (IP + User-Agent). Probe and
// metrics endpoints are exempt.
func userRateLimit(cfg config.Config, store fiber.Storage) fiber.Handler {
	exempt := map[string]struct{}{
		"/health":        {},
		"/livez":         {},
		"/readyz":        {},
		cfg.Metrics.Path: {},
	}
	return limiter.New(limiter.Config{
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator:      clientKey,
		Next: func(c *fiber.Ctx) bool {
			_, ok := exempt[c.Path()]
			return ok || c.Method() == fiber.MethodOptions
		},
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "user", clientKey(c), "path", c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too Many Requests",
			})
		},
	})
}
