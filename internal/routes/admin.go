package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/buildinfo"
	"github.com/hsportal/portal/internal/docs"
)

// RegisterAdminRoutes wires the legal document editor and the build record
// used by CI.
func RegisterAdminRoutes(r fiber.Router, d *docs.Handler, b *buildinfo.Handler, attemptLimit, idempotency fiber.Handler) {
	r.Get("/docs", d.Get)
	r.Post("/docs", attemptLimit, d.Save)
	r.Get("/build-info", b.Latest)
	r.Post("/build-info", idempotency, b.Record)
}
