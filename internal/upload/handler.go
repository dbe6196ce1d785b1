package upload

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the image upload endpoints. Failures are reported once and
// never retried.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds an upload HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type deleteRequest struct {
	URL string `json:"url"`
}

// Upload stores the multipart "file" field.
func (h *Handler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "No file provided")
	}
	f, err := fh.Open()
	if err != nil {
		h.logger.Error("open upload failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "Upload failed")
	}
	defer f.Close()

	url, err := h.service.Upload(c.UserContext(), fh.Filename, fh.Header.Get(fiber.HeaderContentType), f, fh.Size)
	if err != nil {
		h.logger.Error("upload failed", slog.String("filename", fh.Filename), slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "Upload failed")
	}
	return c.JSON(fiber.Map{"url": url})
}

// Delete removes a previously uploaded file by its public URL.
func (h *Handler) Delete(c *fiber.Ctx) error {
	var req deleteRequest
	if err := c.BodyParser(&req); err != nil || req.URL == "" {
		return fiber.NewError(http.StatusBadRequest, "No URL provided")
	}
	if err := h.service.Delete(c.UserContext(), req.URL); err != nil {
		h.logger.Error("delete upload failed", slog.String("url", req.URL), slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "Delete failed")
	}
	return c.JSON(fiber.Map{"success": true})
}
