package post

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/middleware"
)

// Handler exposes post HTTP endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds a post HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type createRequest struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	BannerURL string   `json:"banner_url"`
	Tags      []string `json:"tags"`
}

type updateRequest struct {
	Title     *string         `json:"title"`
	Content   *string         `json:"content"`
	BannerURL *string         `json:"banner_url"`
	Tags      json.RawMessage `json:"tags"`
}

// List returns a page of posts.
func (h *Handler) List(c *fiber.Ctx) error {
	page, err := h.service.List(c.UserContext(), ListQuery{
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", defaultLimit),
		Search: c.Query("q"),
		Tag:    c.Query("tag"),
	})
	if err != nil {
		h.logger.Error("list posts failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "failed to load posts")
	}
	return c.JSON(page)
}

// Get returns one post with its table of contents.
func (h *Handler) Get(c *fiber.Ctx) error {
	detail, err := h.service.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, "Not found")
	}
	if err != nil {
		h.logger.Error("load post failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "failed to load post")
	}
	return c.JSON(detail)
}

// Create publishes a post as the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	author, ok := middleware.CurrentIdentity(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "Not authenticated")
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.service.Create(c.UserContext(), author, Input{
		Title:     req.Title,
		Content:   req.Content,
		BannerURL: req.BannerURL,
		Tags:      req.Tags,
	})
	if errors.Is(err, ErrInvalid) {
		return fiber.NewError(http.StatusBadRequest, "Title and content are required")
	}
	if err != nil {
		h.logger.Error("create post failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "failed to create post")
	}
	return c.Status(http.StatusCreated).JSON(p)
}

// Update edits one of the caller's posts.
func (h *Handler) Update(c *fiber.Ctx) error {
	author, ok := middleware.CurrentIdentity(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "Not authenticated")
	}
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	ch := Changes{Title: req.Title, Content: req.Content, BannerURL: req.BannerURL}
	if len(req.Tags) > 0 && string(req.Tags) != "null" {
		if err := json.Unmarshal(req.Tags, &ch.Tags); err != nil {
			return fiber.NewError(http.StatusBadRequest, "tags must be a list")
		}
		ch.SetTags = true
	}

	err := h.service.Update(c.UserContext(), c.Params("id"), author.ID, ch)
	switch {
	case errors.Is(err, ErrInvalid):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Not found")
	case err != nil:
		h.logger.Error("update post failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "failed to update post")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Delete removes a post.
func (h *Handler) Delete(c *fiber.Ctx) error {
	err := h.service.Delete(c.UserContext(), c.Params("id"))
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, "Not found")
	}
	if err != nil {
		h.logger.Error("delete post failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "failed to delete post")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Tags lists the distinct tags in use.
func (h *Handler) Tags(c *fiber.Ctx) error {
	tags, err := h.service.Tags(c.UserContext())
	if err != nil {
		h.logger.Error("list tags failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "failed to load tags")
	}
	return c.JSON(fiber.Map{"tags": tags})
}
