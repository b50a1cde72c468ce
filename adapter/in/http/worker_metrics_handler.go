package http

import (
	"github.com/gofiber/fiber/v2"
)

// Snapshotter reports engine counters.
type Snapshotter interface {
	Snapshot() map[string]any
}

type MetricsHandler struct {
	rules Snapshotter
	pool  func() any
}

// NewMetricsHandler takes the engine metrics and, in worker mode, a pool
// stats getter.
func NewMetricsHandler(rules Snapshotter, pool func() any) *MetricsHandler {
	return &MetricsHandler{rules: rules, pool: pool}
}

func (h *MetricsHandler) Register(app *fiber.App) {
	app.Get("/metrics/rules", h.Rules)
}

func (h *MetricsHandler) Rules(c *fiber.Ctx) error {
	body := fiber.Map{"engine": h.rules.Snapshot()}
	if h.pool != nil {
		body["pool"] = h.pool()
	}
	return c.JSON(body)
}
