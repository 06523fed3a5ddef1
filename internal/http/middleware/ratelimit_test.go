package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBucket(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = rl.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, wait := rl.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = rl.Allow("10.0.0.2")
	assert.True(t, ok, "buckets are per client")

	now = now.Add(time.Second)
	ok, _ = rl.Allow("10.0.0.1")
	assert.True(t, ok)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		ok, _ := rl.Allow("x")
		assert.True(t, ok)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.Allow("old")
	now = now.Add(rateLimitIdleTTL + time.Second)
	rl.Allow("fresh")

	rl.Sweep()
	assert.NotContains(t, rl.buckets, "old")
	assert.Contains(t, rl.buckets, "fresh")
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimit(NewRateLimiter(0.5, 1))(okHandler(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req.RemoteAddr = "192.0.2.7:6666"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}
