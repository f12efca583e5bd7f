package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Policies       *handlers.PoliciesHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	authed := app.Group("", cfg.AuthMiddleware.Handle)
	authed.Get("/me", cfg.Users.Me)

	tickets := authed.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)

	notifications := authed.Group("/notifications")
	notifications.Get("", cfg.Notifications.List)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	staff := authed.Group("/staff", auth.RequireStaff())
	staff.Get("/tickets", cfg.StaffTickets.ListTickets)
	staff.Get("/tickets/:id", cfg.StaffTickets.GetTicket)
	staff.Patch("/tickets/:id/status", cfg.StaffTickets.UpdateStatus)
	staff.Patch("/tickets/:id/priority", cfg.StaffTickets.UpdatePriority)
	staff.Post("/tickets/:id/assign", cfg.StaffTickets.Assign)
	staff.Get("/tickets/:id/history", cfg.StaffTickets.ListHistory)
	staff.Post("/sla/sweep", cfg.StaffTickets.TriggerSweep)
	staff.Get("/sla/stats", cfg.StaffTickets.SweepStats)

	admin := authed.Group("/admin", auth.RequireRole(domain.RoleAdmin, domain.RoleSuperadmin))
	admin.Get("/sla-policies", cfg.Policies.List)
	admin.Post("/sla-policies", cfg.Policies.Create)
	admin.Put("/sla-policies/:id", cfg.Policies.Update)
	admin.Delete("/sla-policies/:id", cfg.Policies.Delete)

	superadmin := authed.Group("/admin/users", auth.RequireRole(domain.RoleSuperadmin))
	superadmin.Post("", cfg.Users.CreateUser)
	superadmin.Patch("/:id/status", cfg.Users.UpdateUserStatus)
}
