package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dixielabs/modmail/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Tickets  *handlers.TicketsHandler
	ModLogs  *handlers.ModLogsHandler
	OpsToken string
}

// RegisterRoutes wires the read-only ops routes. Health probes are open;
// everything else sits behind the bearer token.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	ops := app.Group("", BearerAuth(cfg.OpsToken))
	ops.Get("/tickets/open", cfg.Tickets.ListOpen)
	ops.Get("/mod-logs/by-moderator/:moderator_id", cfg.ModLogs.ListByModerator)
	ops.Get("/mod-logs/:user_id", cfg.ModLogs.ListByUser)
}
