// Package buildinfo records which commit is deployed.
package buildinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/hsportal/portal/internal/infra"
)

// ErrNotFound means no build has been recorded.
var ErrNotFound = errors.New("no build recorded")

// Info is one deployed build.
type Info struct {
	ID        int64     `json:"id"`
	SHA       string    `json:"sha"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository stores build records.
type Repository interface {
	Latest(ctx context.Context) (Info, error)
	Record(ctx context.Context, sha, message string) (Info, error)
}

// PostgresRepository stores builds in the build_info table.
type PostgresRepository struct {
	db infra.DB
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db infra.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Latest returns the newest build.
func (r *PostgresRepository) Latest(ctx context.Context) (Info, error) {
	var in Info
	err := r.db.QueryRow(ctx, `SELECT id, sha, message, created_at FROM build_info
        ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&in.ID, &in.SHA, &in.Message, &in.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("select build info: %w", err)
	}
	in.CreatedAt = in.CreatedAt.UTC()
	return in, nil
}

// Record inserts a build.
func (r *PostgresRepository) Record(ctx context.Context, sha, message string) (Info, error) {
	in := Info{SHA: sha, Message: message}
	err := r.db.QueryRow(ctx, `INSERT INTO build_info (sha, message) VALUES ($1, $2)
        RETURNING id, created_at`, sha, message).Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		return Info{}, fmt.Errorf("insert build info: %w", err)
	}
	in.CreatedAt = in.CreatedAt.UTC()
	return in, nil
}

type memoryRepository struct {
	mu     sync.Mutex
	builds []Info
	now    func() time.Time
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{now: time.Now}
}

func (r *memoryRepository) Latest(context.Context) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.builds) == 0 {
		return Info{}, ErrNotFound
	}
	return r.builds[len(r.builds)-1], nil
}

func (r *memoryRepository) Record(_ context.Context, sha, message string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := Info{ID: int64(len(r.builds) + 1), SHA: sha, Message: message, CreatedAt: r.now().UTC()}
	r.builds = append(r.builds, in)
	return in, nil
}

// Handler exposes the build info endpoints.
type Handler struct {
	repo   Repository
	logger *slog.Logger
}

// NewHandler builds a build info HTTP handler.
func NewHandler(repo Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

type recordRequest struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
}

// Latest returns the newest build.
func (h *Handler) Latest(c *fiber.Ctx) error {
	in, err := h.repo.Latest(c.UserContext())
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		h.logger.Error("load build info failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "failed to load build info")
	}
	return c.JSON(in)
}

// Record stores a build reported by CI.
func (h *Handler) Record(c *fiber.Ctx) error {
	var req recordRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SHA) == "" {
		return fiber.NewError(http.StatusBadRequest, "Invalid request body")
	}
	if _, err := h.repo.Record(c.UserContext(), strings.TrimSpace(req.SHA), req.Message); err != nil {
		h.logger.Error("record build info failed", slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to record build"})
	}
	return c.JSON(fiber.Map{"success": true})
}
