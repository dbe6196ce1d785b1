package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/profile"
)

// RegisterProfileRoutes wires student registration endpoints.
func RegisterProfileRoutes(r fiber.Router, h *profile.Handler, requireIdentity fiber.Handler) {
	r.Get("/profile/subjects", h.Subjects)
	r.Get("/profile", requireIdentity, h.Get)
	r.Put("/profile", requireIdentity, h.Save)
}
