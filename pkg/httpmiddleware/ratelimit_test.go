package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remoteAddr string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(h, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(h, "10.0.0.1:9999", nil).Code)
	}

	w := serve(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_PerClient(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:5678", nil).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("Authorization") },
	})(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "", map[string]string{"Authorization": "a"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "", map[string]string{"Authorization": "a"}).Code)
	assert.Equal(t, http.StatusOK, serve(h, "", map[string]string{"Authorization": "b"}).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
	xff := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}

	assert.Equal(t, http.StatusOK, serve(h, "192.168.1.1:4444", xff).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "192.168.1.2:5555", xff).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{})(okHandler())
	for range 10 {
		w := serve(h, "10.0.0.1:1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimiter_WindowRolls(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, _, ok := l.take("k", start)
	require.True(t, ok)
	_, _, ok = l.take("k", start.Add(time.Second))
	require.True(t, ok)
	_, _, ok = l.take("k", start.Add(2*time.Second))
	require.False(t, ok)

	// Two windows later nothing of the old traffic counts.
	remaining, _, ok := l.take("k", start.Add(2*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 1, remaining)

	l.sweep(start.Add(10 * time.Minute))
	assert.Empty(t, l.window)
}
