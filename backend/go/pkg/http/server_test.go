package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper function to create a mock config for testing
func newTestConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		Middleware: config.MiddlewareConfig{
			RateLimiter: config.RateLimiterConfig{
				Enabled: true,
				Rate:    0.001,
				Burst:   2,
			},
			CircuitBreaker: config.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 2, // Open after 2 consecutive failures
				SuccessThreshold: 2,
				Timeout:          "10s",
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestNewServer_WithAddress(t *testing.T) {
	srv, err := NewServer(newTestConfig(), http.NotFoundHandler(), WithAddress(":9999"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", srv.httpServer.Addr)
}

func TestRateLimiterMiddleware(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.CircuitBreaker.Enabled = false

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv, err := NewServer(cfg, ok)
	require.NoError(t, err)

	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(testServer.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
		resp.Body.Close()
	}

	resp, err := http.Get(testServer.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.Enabled = false

	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	})
	srv, err := NewServer(cfg, failing)
	require.NoError(t, err)

	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(testServer.URL + "/fail")
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(testServer.URL + "/fail")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Circuit Breaker is open")
}

func TestClientDoJSON(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"name":"x"`) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("bad body"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	defer ts.Close()

	c, err := NewClient(config.CircuitBreakerConfig{}, 0)
	require.NoError(t, err)

	var out struct {
		ID string `json:"id"`
	}
	err = c.DoJSON(context.Background(), http.MethodPost, ts.URL, map[string]string{"Authorization": "Bearer k"}, map[string]string{"name": "x"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "42", out.ID)
	assert.Equal(t, "Bearer k", gotAuth)

	err = c.DoJSON(context.Background(), http.MethodPost, ts.URL, nil, map[string]string{"name": "y"}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "bad body", se.Body)
}

func TestClientOpensBreakerOnServerErrors(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c, err := NewClient(config.CircuitBreakerConfig{
		Enabled: true, FailureThreshold: 1, SuccessThreshold: 1, Timeout: "1m",
	}, 0)
	require.NoError(t, err)

	err = c.DoJSON(context.Background(), http.MethodGet, ts.URL, nil, nil, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)

	err = c.DoJSON(context.Background(), http.MethodGet, ts.URL, nil, nil, nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
