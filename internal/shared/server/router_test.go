package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"paper-backend/internal/services/health"
	"paper-backend/internal/shared/config"
	"paper-backend/internal/shared/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
	telemetry.SetOutput(io.Discard)
}

func TestHealthReportsChecks(t *testing.T) {
	svc := health.NewService()
	svc.Register("db", func(context.Context) error { return nil })
	router := NewRouter(RouterDeps{Config: config.Config{Env: "test"}, Health: svc})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var report health.Report
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !report.OK || report.Checks["db"] != "ok" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestHealthUnavailableWhenCheckFails(t *testing.T) {
	svc := health.NewService()
	svc.Register("redis", func(context.Context) error { return errors.New("down") })
	router := NewRouter(RouterDeps{Config: config.Config{Env: "test"}, Health: svc})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestHealthDoesNotRequireIdentity(t *testing.T) {
	router := NewRouter(RouterDeps{Config: config.Config{Env: "test"}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestMeRequiresIdentity(t *testing.T) {
	router := NewRouter(RouterDeps{Config: config.Config{Env: "test"}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("X-Guest-Id", "reader")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["userId"] != "guest:reader" || body["isGuest"] != true {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(RouterDeps{Config: config.Config{Env: "test"}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "go_goroutines") {
		t.Fatalf("expected go collector output")
	}
}

func TestRateLimitAppliesToAuthedRoutes(t *testing.T) {
	router := NewRouter(RouterDeps{Config: config.Config{Env: "test", ReadRatePerMinute: 1}})

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("X-Guest-Id", "busy")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", code)
	}
}

func TestRateLimitGroup(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/api/v1/documents", "UPLOAD"},
		{http.MethodPost, "/api/v1/documents/batch", "UPLOAD"},
		{http.MethodPost, "/api/v1/documents/search", "READ"},
		{http.MethodGet, "/api/v1/documents", "READ"},
		{http.MethodDelete, "/api/v1/documents/:id", "READ"},
	}
	for _, tt := range tests {
		var got string
		r := gin.New()
		r.Handle(tt.method, tt.path, func(c *gin.Context) {
			got = rateLimitGroup(c)
		})
		path := strings.Replace(tt.path, ":id", "abc", 1)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, path, nil))
		if got != tt.want {
			t.Fatalf("%s %s: got %q want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestAddr(t *testing.T) {
	if got := Addr(""); got != ":8080" {
		t.Fatalf("got %q", got)
	}
	if got := Addr("9000"); got != ":9000" {
		t.Fatalf("got %q", got)
	}
	if got := Addr(":7000"); got != ":7000" {
		t.Fatalf("got %q", got)
	}
}
