package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiterValidation(t *testing.T) {
	_, err := NewRateLimiter(RateLimiterConfig{Rate: 0, Burst: 1})
	assert.Error(t, err)

	_, err = NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 0})
	assert.Error(t, err)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, err := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 2, Expiration: time.Hour})
	require.NoError(t, err)
	defer rl.Stop()

	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// burst of two from one host, even across source ports
	assert.Equal(t, http.StatusOK, request("10.0.0.5:40000").Code)
	assert.Equal(t, http.StatusOK, request("10.0.0.5:40001").Code)

	rec := request("10.0.0.5:40002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, request("10.0.0.6:40000").Code)
}

func TestRateLimiterRefills(t *testing.T) {
	rl, err := NewRateLimiter(RateLimiterConfig{Rate: 20, Burst: 1, Expiration: time.Hour})
	require.NoError(t, err)
	defer rl.Stop()

	require.True(t, rl.Allow("bench"))
	require.False(t, rl.Allow("bench"))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, rl.Allow("bench"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, err := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, Expiration: time.Hour})
	require.NoError(t, err)
	defer rl.Stop()

	rl.Allow("stale")
	rl.mu.Lock()
	rl.limiters["stale"].lastUsed = time.Now().Add(-2 * time.Hour)
	rl.mu.Unlock()
	rl.Allow("fresh")

	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "stale")
	assert.Contains(t, rl.limiters, "fresh")
}

func TestRateLimiterConcurrentClients(t *testing.T) {
	rl, err := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 5, Expiration: time.Hour})
	require.NoError(t, err)
	defer rl.Stop()

	var mu sync.Mutex
	allowed := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, allowed)
	rl.Stop()
}
