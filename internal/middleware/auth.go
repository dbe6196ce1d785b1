package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/identity"
)

const identityLocal = "identity"

// SessionResolver returns the confirmed identity behind the request's browser
// session, if there is one.
type SessionResolver func(c *fiber.Ctx) (identity.Identity, bool)

// RequireIdentity accepts either a bearer access token or a confirmed browser
// session and stores the caller in the request locals.
func RequireIdentity(verifier *identity.Verifier, sessions SessionResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			id, err := verifier.Verify(strings.TrimSpace(authz[len("Bearer "):]))
			if err != nil {
				return fiber.NewError(http.StatusUnauthorized, "invalid token")
			}
			setIdentity(c, id)
			return c.Next()
		}
		if sessions != nil {
			if id, ok := sessions(c); ok {
				setIdentity(c, id)
				return c.Next()
			}
		}
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
}

// RequireAuthor lets only the configured author through. It must run after
// RequireIdentity.
func RequireAuthor(authorEmail string) fiber.Handler {
	authorEmail = strings.ToLower(strings.TrimSpace(authorEmail))
	return func(c *fiber.Ctx) error {
		id, ok := CurrentIdentity(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "authentication required")
		}
		if authorEmail == "" || !strings.EqualFold(id.Email, authorEmail) {
			return fiber.NewError(http.StatusForbidden, "only the author can do that")
		}
		return c.Next()
	}
}

// CurrentIdentity returns the caller stored by RequireIdentity.
func CurrentIdentity(c *fiber.Ctx) (identity.Identity, bool) {
	id, ok := c.Locals(identityLocal).(identity.Identity)
	return id, ok
}

func setIdentity(c *fiber.Ctx, id identity.Identity) {
	c.Locals(identityLocal, id)
	c.Locals("user_id", id.ID)
}
