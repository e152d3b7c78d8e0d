package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/pkg/circuitbreaker"
	pkghttp "CaseForAI/backend/go/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundClientsHaveSeparateBreakers(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer healthy.Close()

	cfg := &config.AppConfig{Middleware: config.MiddlewareConfig{CircuitBreaker: config.CircuitBreakerConfig{
		Enabled: true, FailureThreshold: 1, SuccessThreshold: 1, Timeout: "1m",
	}}}
	out, err := newOutbound(cfg)
	require.NoError(t, err)

	// 邮件服务连续失败打开熔断器
	_, err = out.mail.Download(context.Background(), failing.URL, nil, 0)
	require.Error(t, err)
	_, err = out.mail.Download(context.Background(), healthy.URL, nil, 0)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)

	// 电子签名客户端不受影响
	body, err := out.esign.Download(context.Background(), healthy.URL, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	// 网页抓取只访问公网地址
	_, err = out.web.Fetch(context.Background(), healthy.URL)
	assert.ErrorIs(t, err, pkghttp.ErrForbiddenAddress)
}
