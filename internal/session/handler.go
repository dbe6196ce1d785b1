package session

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/hsportal/portal/internal/identity"
	"github.com/hsportal/portal/internal/profile"
)

// ScopeCookie identifies a browser. It plays the role of the origin-scoped
// local storage of the browser.
const ScopeCookie = "portal_scope"

const loginFailed = "login attempt failed"

// HandlerConfig configures the session HTTP surface.
type HandlerConfig struct {
	OAuthProvider string
	PublicURL     string
	SecureCookie  bool
	CookieMaxAge  time.Duration
}

// Handler exposes the session and sign-in endpoints.
type Handler struct {
	manager *Manager
	cfg     HandlerConfig
	logger  *slog.Logger
}

// NewHandler builds the session HTTP handler.
func NewHandler(manager *Manager, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if cfg.OAuthProvider == "" {
		cfg.OAuthProvider = "google"
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = 7 * 24 * time.Hour
	}
	return &Handler{manager: manager, cfg: cfg, logger: logger}
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// Get returns the best-known identity without waiting for the provider when
// a cached one exists.
func (h *Handler) Get(c *fiber.Ctx) error {
	return h.resolve(c, false)
}

// Refresh forces verification against the provider.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	return h.resolve(c, true)
}

func (h *Handler) resolve(c *fiber.Ctx, force bool) error {
	scope, known := h.knownScope(c)
	if !known {
		return c.JSON(Snapshot{State: StateSignedOut})
	}
	snap, err := h.withCache(scope, func(cache *Cache) (Snapshot, error) {
		return cache.ResolveIdentity(c.UserContext(), force)
	})
	if err != nil {
		h.logger.Warn("resolve session failed", slog.Any("error", err))
		return fiber.NewError(http.StatusServiceUnavailable, "session unavailable")
	}
	return c.JSON(snap)
}

// Visibility records that the page became visible or hidden.
func (h *Handler) Visibility(c *fiber.Ctx) error {
	var req visibilityRequest
	if err := c.BodyParser(&req); err != nil || req.Visible == nil {
		return fiber.NewError(http.StatusBadRequest, "visible is required")
	}
	if scope, known := h.knownScope(c); known {
		h.manager.Get(scope).SetVisible(*req.Visible)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Login redirects the browser to the provider's consent page.
func (h *Handler) Login(c *fiber.Ctx) error {
	cache := h.manager.Get(h.scope(c, true))
	callback := h.cfg.PublicURL + "/api/auth/callback?" + url.Values{
		"redirect_to": {safeRedirect(c.Query("redirect_to"))},
	}.Encode()

	target, err := cache.SignIn(c.UserContext(), h.cfg.OAuthProvider, callback)
	if err != nil {
		h.logger.Warn("login attempt failed", slog.Any("error", err))
		return fiber.NewError(http.StatusBadGateway, loginFailed)
	}
	return c.Redirect(target, http.StatusFound)
}

// Callback completes the sign-in and sends the browser back.
func (h *Handler) Callback(c *fiber.Ctx) error {
	back := safeRedirect(c.Query("redirect_to"))
	code := c.Query("code")
	if code == "" {
		return c.Redirect(withQuery(back, "error", "login_failed"), http.StatusFound)
	}
	cache := h.manager.Get(h.scope(c, true))
	if err := cache.ExchangeCode(c.UserContext(), code); err != nil {
		h.logger.Warn("code exchange failed", slog.Any("error", err))
		return c.Redirect(withQuery(back, "error", "login_failed"), http.StatusFound)
	}
	return c.Redirect(back, http.StatusFound)
}

// Logout signs out everywhere and clears the cache.
func (h *Handler) Logout(c *fiber.Ctx) error {
	scope := h.scope(c, false)
	if scope == "" {
		return c.JSON(fiber.Map{"ok": true})
	}
	if err := h.manager.Get(scope).SignOut(c.UserContext()); err != nil {
		h.logger.Warn("sign out failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "sign out failed")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// ConfirmedIdentity resolves the caller of a write endpoint. Only an identity
// the provider has confirmed counts; a cached one is re-verified first.
func (h *Handler) ConfirmedIdentity(c *fiber.Ctx) (identity.Identity, bool) {
	scope := h.scope(c, false)
	if scope == "" {
		return identity.Identity{}, false
	}
	ctx := c.UserContext()
	snap, err := h.withCache(scope, func(cache *Cache) (Snapshot, error) {
		snap, err := cache.ResolveIdentity(ctx, false)
		if err != nil || snap.State == StateConfirmed {
			return snap, err
		}
		return cache.ResolveIdentity(ctx, true)
	})
	if err != nil || snap.State != StateConfirmed || snap.Identity == nil {
		return identity.Identity{}, false
	}
	return *snap.Identity, true
}

// ProfileSaved records a completed registration in the caller's cache.
func (h *Handler) ProfileSaved(c *fiber.Ctx, p profile.Profile) {
	scope := h.scope(c, false)
	if scope == "" {
		return
	}
	cache, ok := h.manager.Lookup(scope)
	if !ok {
		return
	}
	if err := cache.CompleteRegistration(c.UserContext(), p); err != nil && !errors.Is(err, ErrNotSignedIn) {
		h.logger.Warn("record registration failed", slog.Any("error", err))
	}
}

// withCache runs fn against the scope's cache, retrying once if the cache was
// evicted and closed underneath the request.
func (h *Handler) withCache(scope string, fn func(*Cache) (Snapshot, error)) (Snapshot, error) {
	snap, err := fn(h.manager.Get(scope))
	if errors.Is(err, ErrClosed) {
		snap, err = fn(h.manager.Get(scope))
	}
	return snap, err
}

// knownScope returns the browser scope and whether the request carried it.
// A scope issued by this request has no stored session yet.
func (h *Handler) knownScope(c *fiber.Ctx) (string, bool) {
	if v := h.scope(c, false); v != "" {
		return v, true
	}
	return h.scope(c, true), false
}

// scope returns the browser scope from the cookie. With issue set, a missing
// or malformed cookie is replaced by a fresh one.
func (h *Handler) scope(c *fiber.Ctx, issue bool) string {
	if v := c.Cookies(ScopeCookie); v != "" {
		if _, err := uuid.Parse(v); err == nil {
			return v
		}
	}
	if !issue {
		return ""
	}
	v := uuid.NewString()
	c.Cookie(&fiber.Cookie{
		Name:     ScopeCookie,
		Value:    v,
		Path:     "/",
		MaxAge:   int(h.cfg.CookieMaxAge / time.Second),
		HTTPOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return v
}

// safeRedirect only allows same-site absolute paths.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

func withQuery(target, key, value string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
