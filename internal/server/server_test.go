package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hsportal/portal/internal/config"
	"github.com/hsportal/portal/internal/logging"
	"github.com/hsportal/portal/internal/metrics"
	"github.com/hsportal/portal/internal/routes"
	"github.com/hsportal/portal/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		AppName: "test",
		AppEnv:  "test",
		Port:    "0",
		Auth:    config.AuthConfig{AuthorEmail: "editor@school.kr"},
		Storage: config.StorageConfig{PublicBaseURL: "https://cdn.example", BannerBaseURL: "https://cdn.example"},
		Docs:    config.DocsConfig{AdminPassword: "secret"},
	}
	srv, err := New(routes.Deps{Cfg: cfg, Logger: logging.Discard(), Metrics: metrics.New()})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.Start()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func TestProductionRequiresBackends(t *testing.T) {
	_, err := New(routes.Deps{Cfg: config.Config{AppEnv: "production"}, Logger: logging.Discard()})
	if err == nil {
		t.Fatalf("expected error without database")
	}
}

func TestHealthWithMemoryBackends(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSessionIssuesScopeCookie(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	found := false
	for _, c := range resp.Cookies() {
		if c.Name == session.ScopeCookie && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("scope cookie not issued")
	}
}

func TestWritesRequireIdentity(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/post", strings.NewReader(`{"title":"t","content":"c"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("expected error message, got %v", body)
	}
}

func TestPublicRoutes(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/api/post", "/api/post/tags", "/api/profile/subjects?grade=2", "/api/docs?type=terms", "/api/ping"} {
		resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/post/missing", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/ping", nil)); err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `portal_http_requests_total{method="GET",route="/api/ping",status="200"} 1`) {
		t.Fatalf("request not counted:\n%s", body)
	}
}
