// Package metrics 暴露 Prometheus 指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "case_for_ai"

var (
	// Registry 保存本服务的所有采集器。
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms ~ 10s
		},
		[]string{"method", "route"},
	)

	llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM generations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	llmDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of LLM generations.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms ~ 64s
		},
		[]string{"operation"},
	)

	ingestionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Document ingestion runs by outcome.",
		},
		[]string{"outcome"},
	)

	ingestionChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "chunks_total",
			Help:      "Chunks written to the vector store.",
		},
	)

	emailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "sent_total",
			Help:      "Transactional emails by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		},
		[]string{"job", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		llmCalls,
		llmDuration,
		ingestionRuns,
		ingestionChunks,
		emailsSent,
		jobRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler 返回 /metrics 的处理器。
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP 记录一次 HTTP 请求，签名与 httpmiddleware.Observer 一致。
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveLLM 记录一次 LLM 调用。
func ObserveLLM(operation string, elapsed time.Duration, err error) {
	llmCalls.WithLabelValues(operation, outcome(err)).Inc()
	llmDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveIngestion 记录一次文档向量化。
func ObserveIngestion(chunks int, err error) {
	ingestionRuns.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		ingestionChunks.Add(float64(chunks))
	}
}

// ObserveEmail 记录一封邮件的发送结果。
func ObserveEmail(kind string, err error) {
	emailsSent.WithLabelValues(kind, outcome(err)).Inc()
}

// ObserveJob 记录一次定时任务执行。
func ObserveJob(job string, err error) {
	jobRuns.WithLabelValues(job, outcome(err)).Inc()
}
