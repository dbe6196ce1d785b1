package buildinfo

import (
	"context"
	"encoding/json"
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

func TestPostgresRepository(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO build_info").
		WithArgs("abc123", "fix banner").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))
	mock.ExpectQuery("SELECT id, sha, message, created_at FROM build_info").
		WillReturnRows(pgxmock.NewRows([]string{"id", "sha", "message", "created_at"}).AddRow(int64(7), "abc123", "fix banner", created))

	repo := NewPostgresRepository(mock)
	in, err := repo.Record(context.Background(), "abc123", "fix banner")
	require.NoError(t, err)
	assert.Equal(t, int64(7), in.ID)

	latest, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{ID: 7, SHA: "abc123", Message: "fix banner", CreatedAt: created}, latest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM build_info").WillReturnRows(pgxmock.NewRows([]string{"id", "sha", "message", "created_at"}))
	_, err = NewPostgresRepository(mock).Latest(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandler(t *testing.T) {
	h := NewHandler(NewMemoryRepository(), logging.Discard())
	app := fiber.New()
	app.Get("/api/build-info", h.Latest)
	app.Post("/api/build-info", h.Record)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/build-info", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	for _, body := range []string{`not json`, `{"message":"no sha"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/build-info", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err = app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	for _, sha := range []string{"aaa", "bbb"} {
		req := httptest.NewRequest(http.MethodPost, "/api/build-info", strings.NewReader(`{"sha":"`+sha+`","message":"deploy"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err = app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/build-info", nil))
	require.NoError(t, err)
	var latest Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	assert.Equal(t, "bbb", latest.SHA)
	assert.Equal(t, int64(2), latest.ID)
}
