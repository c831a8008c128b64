package server_handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	appinfo "mockproxy/internal/appinfo"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	StartTime time.Time `json:"start_time"`
	RuleCount int       `json:"rule_count"`
	Version   string    `json:"version"`
}

// HealthHandler reports liveness plus the currently installed rule count,
// recomputed on each request since rules may change between polls.
func HealthHandler(ruleCount func() int, version string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(HealthResponse{
			Status:    "ok",
			Uptime:    time.Since(appinfo.StartTime).String(),
			StartTime: appinfo.StartTime,
			RuleCount: ruleCount(),
			Version:   version,
		})
	}
}
