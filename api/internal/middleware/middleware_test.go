package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSPreflight(t *testing.T) {
	mw := CORSMiddleware{AllowCredentials: true, MaxAge: 10 * time.Minute}
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cases", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Fatalf("Allow-Origin = %q, want echoed origin", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("missing Allow-Credentials header")
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("missing Allow-Methods header")
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("Max-Age = %q, want 600", got)
	}
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	mw := CORSMiddleware{}
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tags", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q, want *", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	mw := CORSMiddleware{AllowedOrigins: []string{"https://dash.example.com"}}
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tags", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q, want empty for disallowed origin", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (request still served)", rec.Code)
	}
}

func TestIPRateLimiterBurst(t *testing.T) {
	limiter := NewIPRateLimiter(1, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst was rejected", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("request beyond burst was allowed")
	}
	// A different client has its own bucket.
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("independent client was rejected")
	}
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	mw := RateLimitMiddleware{Limiter: NewIPRateLimiter(1, 1, time.Minute)}
	handler := mw.Wrap(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	first.RemoteAddr = "10.0.0.9:4312"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	second.RemoteAddr = "10.0.0.9:4312"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
}

func TestRateLimitMiddlewareNilLimiterPassesThrough(t *testing.T) {
	mw := RateLimitMiddleware{}
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestResourceFromPath(t *testing.T) {
	tests := []struct {
		path     string
		resource string
		id       string
	}{
		{"/api/v1/admin/cases/7f000001-0000-0000-0000-000000000001", "cases", "7f000001-0000-0000-0000-000000000001"},
		{"/api/v1/worklogs", "worklogs", ""},
		{"/api/v1/admin/holidays/2026-01-01", "holidays", "2026-01-01"},
		{"/api/v1/tags/pathology/cases", "tags", "pathology"},
		{"/healthz", "", ""},
		{"/api/v1/unknown", "", ""},
	}
	for _, tc := range tests {
		resource, id := resourceFromPath(tc.path)
		if tc.resource == "" {
			if resource != nil {
				t.Errorf("%s: resource = %q, want nil", tc.path, *resource)
			}
			continue
		}
		if resource == nil || *resource != tc.resource {
			t.Errorf("%s: resource = %v, want %q", tc.path, resource, tc.resource)
			continue
		}
		if tc.id == "" {
			if id != nil {
				t.Errorf("%s: id = %q, want nil", tc.path, *id)
			}
		} else if id == nil || *id != tc.id {
			t.Errorf("%s: id = %v, want %q", tc.path, id, tc.id)
		}
	}
}

func TestShouldAudit(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/api/v1/worker/tasks", nil)
	if shouldAudit(get, http.StatusOK) {
		t.Fatalf("plain GET should not be audited")
	}
	if !shouldAudit(get, http.StatusUnauthorized) {
		t.Fatalf("auth failures should always be audited")
	}
	post := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	if !shouldAudit(post, http.StatusOK) {
		t.Fatalf("mutations should be audited")
	}
	adminGet := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cases", nil)
	if !shouldAudit(adminGet, http.StatusOK) {
		t.Fatalf("admin reads should be audited")
	}
}
