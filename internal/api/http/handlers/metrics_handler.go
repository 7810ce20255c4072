package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-intake/internal/observability"
)

// MetricsHandler exposes the in-process counters.
type MetricsHandler struct {
	metrics *observability.Metrics
}

func NewMetricsHandler(metrics *observability.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Metrics GET /metrics.
func (h *MetricsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
