package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-intake/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Metrics *handlers.MetricsHandler
	Chat    *handlers.ChatHandler
	Tickets *handlers.TicketsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", cfg.Health.Live)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Metrics)

	api := app.Group("/api")
	api.Post("/chat", cfg.Chat.Chat)
	api.Get("/tickets", cfg.Tickets.ListTickets)
	api.Post("/tickets", cfg.Tickets.CreateTicket)
	api.Get("/tickets/:ticketNo", cfg.Tickets.GetTicket)
	api.Post("/review", cfg.Tickets.Review)
	api.Get("/stats", cfg.Tickets.Stats)
}
