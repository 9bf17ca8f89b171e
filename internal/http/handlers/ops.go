package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"resume-pdf/internal/infra/chrome"
	"resume-pdf/internal/infra/logging"
	"resume-pdf/internal/infra/postgres"
)

// ChromeStats exposes the browser pool state. pool is nil when pooling is
// disabled.
func ChromeStats(pool *chrome.Pool, poolSizeConf int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if pool == nil {
			return c.JSON(chrome.Stats{PoolSizeConf: poolSizeConf})
		}
		return c.JSON(pool.Stats())
	}
}

// RenderHistory lists the most recent audited renders.
type RenderHistory interface {
	Recent(ctx context.Context, limit int) ([]postgres.RenderEvent, error)
}

// RecentRenders serves ?limit=N (default 50) entries of the render audit log.
func RecentRenders(history RenderHistory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if history == nil {
			return fiber.NewError(fiber.StatusNotFound, "Render audit log is disabled")
		}
		events, err := history.Recent(c.UserContext(), c.QueryInt("limit", 50))
		if err != nil {
			logging.Error("Render audit query failed", "error", err)
			return fiber.NewError(fiber.StatusServiceUnavailable, "Render audit log unavailable")
		}
		if events == nil {
			events = []postgres.RenderEvent{}
		}
		return c.JSON(fiber.Map{"renders": events})
	}
}
