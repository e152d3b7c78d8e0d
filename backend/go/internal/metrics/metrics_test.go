package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveHTTPCountsByRoute(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/cases/:id", "404"))
	ObserveHTTP("GET", "/api/v1/cases/:id", 404, 3*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/cases/:id", "404")))
}

func TestObserveOutcomeLabels(t *testing.T) {
	okBefore := testutil.ToFloat64(llmCalls.WithLabelValues("draft", "ok"))
	errBefore := testutil.ToFloat64(llmCalls.WithLabelValues("draft", "error"))
	ObserveLLM("draft", time.Second, nil)
	ObserveLLM("draft", time.Second, errors.New("timeout"))
	assert.Equal(t, okBefore+1, testutil.ToFloat64(llmCalls.WithLabelValues("draft", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(llmCalls.WithLabelValues("draft", "error")))

	chunks := testutil.ToFloat64(ingestionChunks)
	ObserveIngestion(12, nil)
	ObserveIngestion(5, errors.New("embed"))
	assert.Equal(t, chunks+12, testutil.ToFloat64(ingestionChunks))
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveEmail("share", nil)
	ObserveJob("expire_shares", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "case_for_ai_email_sent_total")
	assert.Contains(t, w.Body.String(), "case_for_ai_jobs_runs_total")
}
