package neis

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/middleware"
	"github.com/hsportal/portal/internal/profile"
)

// ProfileLookup loads the caller's profile.
type ProfileLookup interface {
	Get(ctx context.Context, id string) (profile.Profile, error)
}

// Handler serves the meal and timetable endpoints.
type Handler struct {
	service  *Service
	profiles ProfileLookup
}

// NewHandler builds the NEIS HTTP handler.
func NewHandler(service *Service, profiles ProfileLookup) *Handler {
	return &Handler{service: service, profiles: profiles}
}

// Meals serves GET /api/meals?date=YYYYMMDD.
func (h *Handler) Meals(c *fiber.Ctx) error {
	date := c.Query("date")
	if date == "" {
		date = h.service.Today()
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fiber.NewError(http.StatusBadRequest, "date must be YYYYMMDD")
	}
	return c.JSON(h.service.Meals(c.UserContext(), date))
}

// Timetable serves GET /api/timetable for the signed-in student.
func (h *Handler) Timetable(c *fiber.Ctx) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	p, err := h.profiles.Get(c.UserContext(), id.ID)
	if errors.Is(err, profile.ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, "profile not found")
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "failed to load profile")
	}
	return c.JSON(h.service.Timetable(c.UserContext(), p))
}
