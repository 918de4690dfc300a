package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/cliploop/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthDisabledPassesThrough(t *testing.T) {
	cfg := newAuthConfig(&config.Config{})
	h := adminAuth(okHandler(), cfg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/import/scan", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("unconfigured auth should pass through, got %d", rec.Code)
	}
}

func TestAdminAuthToken(t *testing.T) {
	cfg := newAuthConfig(&config.Config{AdminToken: "sekrit"})
	h := adminAuth(okHandler(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/admin/import/scan", nil)
	req.Header.Set("X-Admin-Token", "sekrit")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token rejected: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/import/scan", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token accepted: %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header on 401")
	}
}

func TestAdminAuthBasic(t *testing.T) {
	cfg := newAuthConfig(&config.Config{AdminUsername: "admin", AdminPassword: "pw"})
	h := adminAuth(okHandler(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/admin/import/scan", nil)
	req.SetBasicAuth("admin", "pw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid basic auth rejected: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/import/scan", nil)
	req.SetBasicAuth("admin", "nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad basic auth accepted: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/import/scan", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing credentials accepted: %d", rec.Code)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 3,
		window:        time.Minute,
	})

	for i := 0; i < 3; i++ {
		if !limiter.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("1.2.3.4") {
		t.Error("fourth request within window should be denied")
	}
	// Other IPs are unaffected.
	if !limiter.allow("5.6.7.8") {
		t.Error("different IP should have its own budget")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: false, requestsPerIP: 1, window: time.Minute})
	for i := 0; i < 10; i++ {
		if !limiter.allow("1.2.3.4") {
			t.Fatal("disabled limiter should always allow")
		}
	}
}

func TestRateLimitMiddlewareUsesForwardedFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 1,
		window:        time.Minute,
	})
	h := rateLimitMiddleware(okHandler(), limiter)

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/channels/x/block", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("203.0.113.9, 10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first request from forwarded IP: %d", code)
	}
	if code := send("203.0.113.9"); code != http.StatusTooManyRequests {
		t.Fatalf("second request from same forwarded IP should be limited, got %d", code)
	}
	// Different forwarded client is a separate bucket.
	if code := send("198.51.100.2"); code != http.StatusOK {
		t.Fatalf("request from different forwarded IP: %d", code)
	}
}

func TestIsProtectedChannelWrite(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodPost, "/channels/x/commands/skip", true},
		{http.MethodPost, "/channels/x/commands/skip/poll", false},
		{http.MethodPost, "/channels/x/block", true},
		{http.MethodPost, "/channels/x/unblock", true},
		{http.MethodGet, "/channels/x/blocked", false},
		{http.MethodGet, "/channels/x/filter", false},
		{http.MethodPut, "/channels/x/filter", true},
		{http.MethodDelete, "/channels/x/filter", true},
		{http.MethodGet, "/channels/x/clips", false},
		{http.MethodGet, "/healthz", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if got := isProtectedChannelWrite(req); got != tt.want {
			t.Errorf("%s %s = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestCORSPermissive(t *testing.T) {
	h := withCORSConfig(okHandler(), &corsConfig{permissive: true})

	req := httptest.NewRequest(http.MethodGet, "/channels/x/clips", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("permissive mode should allow all origins, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	// Preflight short-circuits.
	req = httptest.NewRequest(http.MethodOptions, "/channels/x/clips", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
}

func TestCORSRestricted(t *testing.T) {
	h := withCORSConfig(okHandler(), &corsConfig{
		permissive:     false,
		allowedOrigins: []string{"https://player.example.com", "*.example.org"},
	})

	req := httptest.NewRequest(http.MethodGet, "/channels/x/clips", nil)
	req.Header.Set("Origin", "https://player.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://player.example.com" {
		t.Errorf("allowed origin not echoed: %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/channels/x/clips", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin got CORS headers")
	}

	// Wildcard subdomain match.
	if !isOriginAllowed("https://sub.example.org", []string{"*.example.org"}) {
		t.Error("wildcard subdomain should match")
	}
	if isOriginAllowed("https://example.org.evil.com", []string{"*.example.org"}) {
		t.Error("suffix trick should not match")
	}
}
