package post

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsportal/portal/internal/identity"
	"github.com/hsportal/portal/internal/logging"
	"github.com/hsportal/portal/internal/middleware"
)

func newTestApp(t *testing.T, caller identity.Identity) *fiber.App {
	t.Helper()
	h := NewHandler(newTestService(), logging.Discard())
	sessions := func(*fiber.Ctx) (identity.Identity, bool) { return caller, caller.ID != "" }
	write := []fiber.Handler{
		middleware.RequireIdentity(identity.NewVerifier(""), sessions),
		middleware.RequireAuthor(author.Email),
	}

	app := fiber.New()
	app.Get("/api/post", h.List)
	app.Get("/api/post/tags", h.Tags)
	app.Post("/api/post", append(write, h.Create)...)
	app.Get("/api/post/:id", h.Get)
	app.Patch("/api/post/:id", append(write, h.Update)...)
	app.Delete("/api/post/:id", append(write, h.Delete)...)
	return app
}

func send(t *testing.T, app *fiber.App, method, target, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestHandlerPostLifecycle(t *testing.T) {
	app := newTestApp(t, author)

	resp := send(t, app, http.MethodPost, "/api/post", `{"title":"Hello","content":"<h1>Intro</h1><p>hi</p>","tags":["news"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created Post
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	resp = send(t, app, http.MethodGet, "/api/post/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail Detail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, "Hello", detail.Title)
	assert.Equal(t, []Heading{{ID: "intro", Text: "Intro", Level: 1}}, detail.TOC)

	resp = send(t, app, http.MethodPatch, "/api/post/"+created.ID, `{"title":"Hello again"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = send(t, app, http.MethodGet, "/api/post?page=1&limit=5", "")
	var page Page
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Hello again", page.Data[0].Title)
	assert.Equal(t, []string{"news"}, page.Data[0].Tags, "omitted tags must be kept")

	resp = send(t, app, http.MethodGet, "/api/post/tags", "")
	var tags struct{ Tags []string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tags))
	assert.Equal(t, []string{"news"}, tags.Tags)

	resp = send(t, app, http.MethodDelete, "/api/post/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = send(t, app, http.MethodGet, "/api/post/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerCreateValidation(t *testing.T) {
	app := newTestApp(t, author)
	resp := send(t, app, http.MethodPost, "/api/post", `{"title":"","content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerWritesNeedAuthor(t *testing.T) {
	resp := send(t, newTestApp(t, identity.Identity{}), http.MethodPost, "/api/post", `{"title":"a","content":"b"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	student := identity.Identity{ID: "s-1", Email: "student@school.kr"}
	resp = send(t, newTestApp(t, student), http.MethodPost, "/api/post", `{"title":"a","content":"b"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
