package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jaysatani-27/buster-ai-sub003/internal/auth"
	"github.com/jaysatani-27/buster-ai-sub003/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "buster-api" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})

	h := NewHandler(cfg, Dependencies{
		Readiness: func(rctx context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %#v", body)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"BUSTER_AUTH_REQUIRED": "true",
	})
	validator, err := auth.NewStaticAPIKeyValidator("k1:org-1:user-1:viewer")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	store := newFakeDataSourceStore()
	store.add(postgresSource("ds-1", "org-1"), postgresSecret)
	store.add(postgresSource("ds-2", "org-2"), postgresSecret)

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		DataSources:    store,
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/data-sources", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/data-sources", nil)
	authReq.Header.Set("X-API-Key", "k1")
	// Identity wins over the header fallback.
	authReq.Header.Set("X-Organization-ID", "org-2")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d", authResp.Code)
	}

	body := decodeBody(t, authResp)
	if body["organization_id"] != "org-1" {
		t.Fatalf("organization_id = %v", body["organization_id"])
	}
	items, _ := body["data_sources"].([]any)
	if len(items) != 1 {
		t.Fatalf("data_sources = %#v", body["data_sources"])
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"BUSTER_AUTH_REQUIRED": "true"})

	h := NewHandler(cfg, Dependencies{DataSources: newFakeDataSourceStore()})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/data-sources", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "AUTH_MIDDLEWARE_MISSING" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestRateLimitAppliesToProtectedRoutes(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})
	limiter, err := auth.NewRateLimiter(1, 1)
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}
	store := newFakeDataSourceStore()

	h := NewHandler(cfg, Dependencies{DataSources: store, RateLimit: limiter.Middleware})

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/v1/data-sources", nil)
		req.Header.Set("X-Organization-ID", "org-1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	// Health is outside the limiter.
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
}

func TestCORSPreflightForConfiguredOrigin(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"BUSTER_CORS_ORIGINS": "https://app.example.com",
	})

	h := NewHandler(cfg, Dependencies{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/data-sources", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCheckObjectStoreConfigSkipsWhenDisabled(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})
	cfg.ObjectStore.Enabled = false
	cfg.ObjectStore.Endpoint = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("disabled check error = %v", err)
	}

	cfg.ObjectStore.Enabled = true
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func loadTestConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("buster-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v, body=%s", err, rr.Body.String())
	}
	return body
}

func newJSONRequest(method, target, body string, headers map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req
}
