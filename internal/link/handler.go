package link

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

type lookupRequest struct {
	URL string `json:"url"`
}

// Handler serves GET /api/link?url= and POST /api/link.
func (s *Scraper) Handler(c *fiber.Ctx) error {
	target := c.Query("url")
	if c.Method() == fiber.MethodPost {
		var req lookupRequest
		if err := c.BodyParser(&req); err == nil {
			target = req.URL
		}
	}
	if target == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "URL is required"})
	}

	meta, err := s.Lookup(c.UserContext(), c.IP(), target)
	if errors.Is(err, ErrThrottled) {
		c.Set(fiber.HeaderRetryAfter, "2")
		return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"success": false, "message": "Too many requests"})
	}
	if err != nil {
		s.logger.Warn("link metadata lookup failed", slog.String("url", target), slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to fetch metadata"})
	}
	return c.JSON(fiber.Map{"success": true, "meta": meta})
}
