package profile

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/middleware"
)

// SavedHook runs after a profile is stored, with the request that stored it.
type SavedHook func(c *fiber.Ctx, p Profile)

// Handler exposes profile HTTP endpoints.
type Handler struct {
	service *Service
	onSaved SavedHook
}

// NewHandler builds a profile HTTP handler. onSaved may be nil.
func NewHandler(service *Service, onSaved SavedHook) *Handler {
	return &Handler{service: service, onSaved: onSaved}
}

type saveRequest struct {
	Name     string            `json:"name"`
	Grade    int               `json:"grade"`
	Class    int               `json:"class"`
	Number   int               `json:"number"`
	Subjects map[string]string `json:"subjects"`
}

// Get returns the caller's profile.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	p, err := h.service.Get(c.UserContext(), id.ID)
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, "profile not found")
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "failed to load profile")
	}
	return c.JSON(p)
}

// Save registers or edits the caller's profile.
func (h *Handler) Save(c *fiber.Ctx) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	var req saveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.service.Save(c.UserContext(), id.ID, id.Email, SaveInput{
		Name:     req.Name,
		Grade:    req.Grade,
		Class:    req.Class,
		Number:   req.Number,
		Subjects: req.Subjects,
	})
	switch {
	case errors.Is(err, ErrInvalid):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateStudent):
		return fiber.NewError(http.StatusConflict, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, "failed to save profile")
	}
	if h.onSaved != nil {
		h.onSaved(c, p)
	}
	return c.JSON(p)
}

// Subjects lists elective options for ?grade=.
func (h *Handler) Subjects(c *fiber.Ctx) error {
	grade, err := strconv.Atoi(c.Query("grade"))
	if err != nil || grade < 1 || grade > maxGrade {
		return fiber.NewError(http.StatusBadRequest, "grade must be 1, 2 or 3")
	}
	return c.JSON(fiber.Map{"grade": grade, "tracks": Tracks(grade)})
}
