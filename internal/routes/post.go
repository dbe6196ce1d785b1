package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/post"
	"github.com/hsportal/portal/internal/upload"
)

// RegisterPostRoutes wires the blog and its image uploads. Static segments
// come before /:id so they are not captured as ids.
func RegisterPostRoutes(r fiber.Router, posts *post.Handler, uploads *upload.Handler, requireIdentity, requireAuthor fiber.Handler) {
	group := r.Group("/post")
	group.Get("/tags", posts.Tags)
	group.Post("/upload", requireIdentity, requireAuthor, uploads.Upload)
	group.Delete("/upload", requireIdentity, requireAuthor, uploads.Delete)

	group.Get("", posts.List)
	group.Post("", requireIdentity, requireAuthor, posts.Create)
	group.Get("/:id", posts.Get)
	group.Patch("/:id", requireIdentity, requireAuthor, posts.Update)
	group.Delete("/:id", requireIdentity, requireAuthor, posts.Delete)
}
