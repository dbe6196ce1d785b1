package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsportal/portal/internal/session"
)

func TestObserverCounts(t *testing.T) {
	m := New()
	var _ session.Observer = m

	m.VerificationFinished("confirmed")
	m.VerificationFinished("confirmed")
	m.StateChanged(session.StateVerifying, session.StateDegraded)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifications.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("verifying", "degraded")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/metrics", m.Handler())
	app.Get("/api/posts/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "missing" {
			return fiber.NewError(http.StatusNotFound, "Not found")
		}
		return c.SendString("ok")
	})

	for _, path := range []string{"/api/posts/1", "/api/posts/2", "/api/posts/missing"} {
		_, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/posts/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/posts/:id", "404")))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "portal_http_requests_total"))
}
