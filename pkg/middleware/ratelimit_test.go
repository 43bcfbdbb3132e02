package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})

	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow("client") {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	assert.True(t, limiter.Allow("other"), "buckets are per key")
}

func TestRateLimiter_Refill(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 20, BurstSize: 1})

	assert.True(t, limiter.Allow("client"))
	assert.False(t, limiter.Allow("client"))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, limiter.Allow("client"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 5})

	assert.Equal(t, 5, limiter.Remaining("client"))
	limiter.Allow("client")
	assert.Equal(t, 4, limiter.Remaining("client"))
}

func TestRateLimiter_BoundedTable(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxClients: 2})

	limiter.Allow("a")
	limiter.Allow("b")
	limiter.Allow("c")
	assert.Equal(t, 2, limiter.Clients())
}

func TestRateLimiter_IdleExpiry(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1, IdleTTL: 50 * time.Millisecond})

	assert.True(t, limiter.Allow("client"))
	assert.False(t, limiter.Allow("client"))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, limiter.Allow("client"), "expired bucket starts full")
}

func TestRateLimiter_Handler(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 2})
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/-/v1/login", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "2", rec.Header().Get("Retry-After"))
			assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodPost, "/-/v1/login", nil)
	req.RemoteAddr = "198.51.100.1:1"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, remote: "10.0.0.2:1", want: "203.0.113.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "203.0.113.2"}, remote: "10.0.0.2:1", want: "203.0.113.2"},
		{name: "remote addr", remote: "203.0.113.3:4444", want: "203.0.113.3"},
		{name: "remote without port", remote: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
