package httpmiddleware

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/pkg/logger"
	"CaseForAI/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderRequestID carries the trace id between client, API and worker.
	HeaderRequestID = "X-Request-ID"
	// ContextTraceID is the gin context key holding the trace id.
	ContextTraceID = "traceID"
	// ContextLogger is the gin context key holding the request scoped logger.
	ContextLogger = "logger"
)

// Observer receives one call per finished request, used for metrics.
type Observer func(method, route string, status int, elapsed time.Duration)

// RequestLogger assigns a trace id (X-Request-ID or a fresh uuid), stores a request
// scoped logger in the context and writes one access log line per request.
func RequestLogger(base *logger.Logger, observe Observer) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(HeaderRequestID)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set(ContextTraceID, traceID)
		c.Header(HeaderRequestID, traceID)
		reqLog := base.WithTrace(traceID)
		c.Set(ContextLogger, reqLog)

		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if observe != nil {
			observe(c.Request.Method, route, c.Writer.Status(), elapsed)
		}
		if uid, ok := c.Get("userID"); ok {
			reqLog = reqLog.WithUser(fmt.Sprint(uid))
		}
		entry := reqLog.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Status:     c.Writer.Status(),
			LatencyMS:  elapsed.Milliseconds(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

// LoggerFrom returns the request scoped logger, or fallback when none was set.
func LoggerFrom(c *gin.Context, fallback *logger.Logger) *logger.Logger {
	if v, ok := c.Get(ContextLogger); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return fallback
}

// TraceID returns the request trace id, empty outside RequestLogger.
func TraceID(c *gin.Context) string {
	return c.GetString(ContextTraceID)
}

// Throttle rejects requests with 429 once the key returned by keyFn runs out of tokens.
func Throttle(limiter *ratelimiter.Keyed, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if !limiter.Allow(key) {
			wait := limiter.RetryAfter(key)
			c.Header("Retry-After", fmt.Sprintf("%d", int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}
