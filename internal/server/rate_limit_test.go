package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthRateLimiterMiddlewareBlocksAfterLimitAndResets(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)
	limiter := newAuthRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	hitCount := 0
	handler := limiter.limitByIP("api_auth_login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitCount++
		w.WriteHeader(http.StatusNoContent)
	}))

	req := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = "203.0.113.5:54321"
		handler.ServeHTTP(rec, r)
		return rec
	}

	if got := req().Code; got != http.StatusNoContent {
		t.Fatalf("first request status = %d, want %d", got, http.StatusNoContent)
	}
	if got := req().Code; got != http.StatusNoContent {
		t.Fatalf("second request status = %d, want %d", got, http.StatusNoContent)
	}

	third := req()
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want %d", third.Code, http.StatusTooManyRequests)
	}
	if third.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on throttled response")
	}
	if got := third.Body.String(); got == "" {
		t.Fatalf("expected api throttled response body")
	}
	if hitCount != 2 {
		t.Fatalf("handler hit count = %d, want 2", hitCount)
	}

	now = now.Add(61 * time.Second)
	if got := req().Code; got != http.StatusNoContent {
		t.Fatalf("request after window reset status = %d, want %d", got, http.StatusNoContent)
	}
}

func TestAuthRateLimiterMiddlewareKeysByClientIP(t *testing.T) {
	t.Parallel()

	limiter := newAuthRateLimiter(1, time.Minute)
	handler := limiter.limitByIP("web_oauth_start")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	makeReq := func(remoteAddr string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/auth/facebook", nil)
		r.RemoteAddr = remoteAddr
		handler.ServeHTTP(rec, r)
		return rec
	}

	if got := makeReq("198.51.100.10:1000").Code; got != http.StatusNoContent {
		t.Fatalf("first ip status = %d, want %d", got, http.StatusNoContent)
	}
	if got := makeReq("198.51.100.10:1001").Code; got != http.StatusTooManyRequests {
		t.Fatalf("same ip second request status = %d, want %d", got, http.StatusTooManyRequests)
	}
	if got := makeReq("198.51.100.11:1002").Code; got != http.StatusNoContent {
		t.Fatalf("different ip status = %d, want %d", got, http.StatusNoContent)
	}
}

func TestNormalizedClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{name: "ipv4 hostport", remoteAddr: "203.0.113.9:8080", want: "203.0.113.9"},
		{name: "ipv6 hostport", remoteAddr: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{name: "ipv4 no port", remoteAddr: "203.0.113.10", want: "203.0.113.10"},
		{name: "empty", remoteAddr: "", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if got := normalizedClientIP(r); got != tt.want {
				t.Fatalf("normalizedClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
			}
		})
	}
}

func TestAuthRateLimiterWebResponseIsPlainText(t *testing.T) {
	t.Parallel()

	limiter := newAuthRateLimiter(1, time.Minute)
	handler := limiter.limitByIP("web_login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		last = httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.RemoteAddr = "203.0.113.7:1000"
		handler.ServeHTTP(last, r)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", last.Code, http.StatusTooManyRequests)
	}
	if ct := last.Header().Get("Content-Type"); ct == "application/json" {
		t.Fatalf("web throttling should not answer json")
	}
}

func TestAuthRateLimiterScopedPolicies(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)
	limiter := newAuthRateLimiter(10, time.Minute).withPolicies(map[string]rateLimitPolicy{
		"web_forgot": {limit: 2, window: 15 * time.Minute},
		"ignored":    {limit: 0, window: time.Minute},
	})
	limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.allow("web_forgot", "203.0.113.1"); !ok {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	ok, retryAfter := limiter.allow("web_forgot", "203.0.113.1")
	if ok {
		t.Fatalf("third forgot request should be throttled")
	}
	if retryAfter != 15*time.Minute {
		t.Fatalf("retryAfter = %s, want 15m", retryAfter)
	}
	if ok, _ := limiter.allow("web_login", "203.0.113.1"); !ok {
		t.Fatalf("other scopes keep their own budget")
	}
	if got := limiter.policy("ignored"); got != limiter.fallback {
		t.Fatalf("invalid policy should fall back, got %+v", got)
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := limiter.allow("web_forgot", "203.0.113.1"); ok {
		t.Fatalf("forgot window is longer than the fallback window")
	}
}

func TestNormalizedClientIPUnmapsIPv4(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[::ffff:203.0.113.9]:443"
	if got := normalizedClientIP(r); got != "203.0.113.9" {
		t.Fatalf("normalizedClientIP = %q", got)
	}
}
