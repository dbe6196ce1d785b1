package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/session"
)

// RegisterAuthRoutes wires the browser session and sign-in endpoints.
func RegisterAuthRoutes(r fiber.Router, h *session.Handler) {
	r.Get("/session", h.Get)
	r.Post("/session/refresh", h.Refresh)
	r.Post("/session/visibility", h.Visibility)

	group := r.Group("/auth")
	group.Get("/login", h.Login)
	group.Get("/callback", h.Callback)
	group.Post("/logout", h.Logout)
}
