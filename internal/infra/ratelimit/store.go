// Package ratelimit selects the storage behind the request limiter.
package ratelimit

import (
	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"

	"resume-pdf/internal/infra/logging"
)

// RedisConfig points the limiter at a Redis database.
type RedisConfig struct {
	Addr string
	DB   int
}

// NewStore returns Redis-backed storage when Redis is configured and
// reachable, and in-memory storage otherwise. It never returns nil.
func NewStore(cfg RedisConfig) (store fiber.Storage) {
	store = memoryStorage.New()
	if cfg.Addr == "" {
		logging.Info("Using in-memory storage for rate limiting")
		return store
	}

	// The redis storage constructor panics when it cannot connect.
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redis limiter store init panicked, falling back to memory", "panic", r, "addr", cfg.Addr)
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Addr},
		Database: cfg.DB,
	})
	logging.Info("Using Redis for rate limiting", "addr", cfg.Addr, "db", cfg.DB)
	return store
}
