package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLimiterPerIP(t *testing.T) {
	cl, err := newClientLimiter(RateLimitConfig{Requests: 2, Window: time.Hour})
	require.NoError(t, err)
	h := cl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:2222").Code)
	limited := call("10.0.0.1:3333")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(limited.Body.Bytes(), &env))
	assert.Equal(t, "rate_limited", env.Error.Code)

	// other clients keep their own bucket
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1111").Code)
}

func TestClientLimiterConfig(t *testing.T) {
	cl, err := newClientLimiter(RateLimitConfig{})
	require.NoError(t, err)
	assert.Nil(t, cl)

	_, err = newClientLimiter(RateLimitConfig{Requests: 5})
	require.Error(t, err)
}

func TestServerRateLimited(t *testing.T) {
	srv, cleanup := newTestServer(t, RateLimitConfig{Requests: 1, Window: time.Hour})
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode, string(data))
}

func TestClientLimiterBoundsClients(t *testing.T) {
	cl, err := newClientLimiter(RateLimitConfig{Requests: 1, Window: time.Hour, MaxClients: 2})
	require.NoError(t, err)

	first := cl.limiterFor("10.0.0.1")
	cl.limiterFor("10.0.0.2")
	cl.limiterFor("10.0.0.3")
	assert.Equal(t, 2, cl.m.Len())
	assert.False(t, cl.m.Contains("10.0.0.1"))
	assert.NotSame(t, first, cl.limiterFor("10.0.0.1"))
}

func rotateForwardedFor(t *testing.T, srv *testServer, n int) int {
	t.Helper()
	ok := 0
	for i := 0; i < n; i++ {
		res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, map[string]string{
			"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i+1),
		})
		if res.StatusCode == http.StatusOK {
			ok++
		}
	}
	return ok
}

func TestForwardedForIgnoredByDefault(t *testing.T) {
	srv, cleanup := newTestServer(t, RateLimitConfig{Requests: 1, Window: time.Hour})
	defer cleanup()

	assert.Equal(t, 1, rotateForwardedFor(t, srv, 20))
}

func TestForwardedForHonouredBehindProxy(t *testing.T) {
	srv, cleanup := startTestServer(t, Config{
		RateLimit:  RateLimitConfig{Requests: 1, Window: time.Hour},
		TrustProxy: true,
	})
	defer cleanup()

	assert.Equal(t, 5, rotateForwardedFor(t, srv, 5))
}
