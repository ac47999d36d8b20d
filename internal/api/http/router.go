package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/support-agent/internal/api/http/handlers"
	"github.com/spec-kit/support-agent/internal/auth"
)

// Guardrail actions checked per route.
const (
	ActionChat          = "chat"
	ActionListTickets   = "list_tickets"
	ActionTakeover      = "takeover"
	ActionViewAnalytics = "view_analytics"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Chat           *handlers.ChatHandler
	Staff          *handlers.StaffHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Customers      *handlers.CustomerHandler
	AuthMiddleware *auth.AuthMiddleware
	Access         auth.AccessChecker
	// Gatherer backs GET /metrics when set.
	Gatherer prometheus.Gatherer
	// DevTokens enables POST /auth/customer/dev-token.
	DevTokens bool
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Staff.Login)
	if cfg.DevTokens && cfg.Customers != nil {
		authGroup.Post("/customer/dev-token", cfg.Customers.DevToken)
	}

	chat := app.Group("/chat", cfg.AuthMiddleware.Handle, auth.RequireCustomer(), auth.RequireAction(cfg.Access, ActionChat))
	chat.Post("", cfg.Chat.PostMessage)
	chat.Get("/:session_id/history", cfg.Chat.History)

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	staff.Get("/tickets", auth.RequireAction(cfg.Access, ActionListTickets), cfg.StaffTickets.ListTickets)
	staff.Post("/tickets/:id/resolve", auth.RequireAction(cfg.Access, ActionTakeover), cfg.StaffTickets.ResolveTicket)
	staff.Get("/conversations/:id/messages", auth.RequireAction(cfg.Access, ActionListTickets), cfg.StaffTickets.Transcript)
	staff.Post("/conversations/:id/messages", auth.RequireAction(cfg.Access, ActionTakeover), cfg.StaffTickets.PostMessage)
	staff.Post("/conversations/:id/close", auth.RequireAction(cfg.Access, ActionTakeover), cfg.StaffTickets.Close)
	staff.Get("/conversations/:id/analytics", auth.RequireAction(cfg.Access, ActionViewAnalytics), cfg.StaffTickets.Analytics)

	staff.Post("/members", cfg.Staff.CreateStaff)
	staff.Get("/members", cfg.Staff.ListStaff)
	staff.Get("/members/:id", cfg.Staff.GetStaff)
	staff.Put("/members/:id", cfg.Staff.UpdateStaff)
}
