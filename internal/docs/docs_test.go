package docs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsportal/portal/internal/logging"
)

func TestAuthenticator(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	hashed := NewAuthenticator(hash, "ignored")
	assert.True(t, hashed.Check("s3cret"))
	assert.False(t, hashed.Check("ignored"), "the hash takes precedence over the plain password")

	plain := NewAuthenticator("", "pw")
	assert.True(t, plain.Check("pw"))
	assert.False(t, plain.Check("pw "))

	assert.False(t, NewAuthenticator("", "").Check(""), "unconfigured editor must reject everything")
	assert.False(t, NewAuthenticator("", "").Check("anything"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestServiceSaveAndGet(t *testing.T) {
	svc := NewService(NewMemoryRepository(), NewAuthenticator("", "pw"))
	ctx := context.Background()

	d, err := svc.Get(ctx, "privacy")
	require.NoError(t, err)
	assert.Equal(t, "", d.Content)

	_, err = svc.Get(ctx, "cookies")
	assert.ErrorIs(t, err, ErrInvalidType)

	_, created, err := svc.Save(ctx, SaveInput{Type: "privacy", Content: "<p>v1</p><script>x</script>", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = svc.Save(ctx, SaveInput{Type: "privacy", Content: "<p>v2</p>", Password: "pw"})
	require.NoError(t, err)
	assert.False(t, created)

	d, err = svc.Get(ctx, "privacy")
	require.NoError(t, err)
	assert.Equal(t, "<p>v2</p>", d.Content)

	_, _, err = svc.Save(ctx, SaveInput{Type: "terms", Content: "x", Password: "wrong"})
	assert.ErrorIs(t, err, ErrWrongPassword)
	_, _, err = svc.Save(ctx, SaveInput{Type: "terms", Content: " ", Password: "pw"})
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestPostgresRepository(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	updated := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT type, content, updated_at FROM docs").
		WithArgs("terms").
		WillReturnRows(pgxmock.NewRows([]string{"type", "content", "updated_at"}).AddRow("terms", "<p>t</p>", updated))
	mock.ExpectQuery("SELECT type, content, updated_at FROM docs").
		WithArgs("privacy").
		WillReturnRows(pgxmock.NewRows([]string{"type", "content", "updated_at"}))
	mock.ExpectQuery("INSERT INTO docs").
		WithArgs("privacy", "<p>p</p>", updated).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))

	repo := NewPostgresRepository(mock)
	d, err := repo.Get(context.Background(), Terms)
	require.NoError(t, err)
	assert.Equal(t, Document{Type: Terms, Content: "<p>t</p>", UpdatedAt: updated}, d)

	_, err = repo.Get(context.Background(), Privacy)
	assert.True(t, errors.Is(err, ErrNotFound))

	created, err := repo.Upsert(context.Background(), Document{Type: Privacy, Content: "<p>p</p>", UpdatedAt: updated})
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler(t *testing.T) {
	h := NewHandler(NewService(NewMemoryRepository(), NewAuthenticator("", "pw")), logging.Discard())
	app := fiber.New()
	app.Get("/api/docs", h.Get)
	app.Post("/api/docs", h.Save)

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/docs", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	assert.Equal(t, http.StatusBadRequest, post(`{"type":"terms","content":"x"}`).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post(`{"type":"terms","content":"x","password":"no"}`).StatusCode)

	resp := post(`{"type":"terms","content":"<p>x</p>","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.Equal(t, "created", saved["result"])
	assert.Equal(t, "이용약관이 새로 추가되었습니다.", saved["message"])

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/docs?type=terms", nil))
	require.NoError(t, err)
	var d Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	assert.Equal(t, "<p>x</p>", d.Content)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/docs", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
