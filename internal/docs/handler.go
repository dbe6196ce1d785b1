package docs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the legal document endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds a docs HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type saveRequest struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Password string `json:"password"`
}

// Get returns the document named by ?type=.
func (h *Handler) Get(c *fiber.Ctx) error {
	d, err := h.service.Get(c.UserContext(), c.Query("type"))
	if errors.Is(err, ErrInvalidType) {
		return fiber.NewError(http.StatusBadRequest, "Invalid document type")
	}
	if err != nil {
		h.logger.Error("load document failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "Failed to fetch document")
	}
	return c.JSON(d)
}

// Save creates or replaces a document.
func (h *Handler) Save(c *fiber.Ctx) error {
	var req saveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Missing required fields")
	}
	d, created, err := h.service.Save(c.UserContext(), SaveInput{Type: req.Type, Content: req.Content, Password: req.Password})
	switch {
	case errors.Is(err, ErrMissingFields):
		return fiber.NewError(http.StatusBadRequest, "Missing required fields")
	case errors.Is(err, ErrInvalidType):
		return fiber.NewError(http.StatusBadRequest, "Invalid document type")
	case errors.Is(err, ErrWrongPassword):
		h.logger.Warn("document edit rejected", slog.String("ip", c.IP()))
		return fiber.NewError(http.StatusUnauthorized, "Invalid password")
	case err != nil:
		h.logger.Error("save document failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "Failed to save document")
	}

	result, message := "updated", d.Type.Title()+"이 수정되었습니다."
	if created {
		result, message = "created", d.Type.Title()+"이 새로 추가되었습니다."
	}
	return c.JSON(fiber.Map{"success": true, "result": result, "message": message})
}
