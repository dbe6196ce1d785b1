package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/banner"
	"github.com/hsportal/portal/internal/link"
	"github.com/hsportal/portal/internal/neis"
)

// WidgetHandlers serve the home page widgets.
type WidgetHandlers struct {
	Banners *banner.Prober
	Links   *link.Scraper
	Neis    *neis.Handler
}

// RegisterWidgetRoutes wires banners, link previews, meals and the timetable.
func RegisterWidgetRoutes(r fiber.Router, h WidgetHandlers, requireIdentity fiber.Handler) {
	r.Get("/banners", h.Banners.Handler)
	r.Get("/link", h.Links.Handler)
	r.Post("/link", h.Links.Handler)
	r.Get("/meals", h.Neis.Meals)
	r.Get("/timetable", requireIdentity, h.Neis.Timetable)
}
