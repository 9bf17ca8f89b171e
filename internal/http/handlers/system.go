package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Version is reported by the API info endpoint.
const Version = "1.0.0"

// isoMillis matches JavaScript's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Health reports liveness with the current UTC time.
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(isoMillis),
	})
}

// Info describes the API.
func Info(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Resume Maker Backend API",
		"version": Version,
		"endpoints": fiber.Map{
			"health":      "/health",
			"generatePdf": "/generate-pdf",
			"test":        "/api/test",
		},
	})
}

// Live is a minimal connectivity check for the front-end.
func Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "Backend is live!"})
}
