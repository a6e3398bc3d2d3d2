package middleware

import (
	"net/http"

	"github.com/felixge/httpsnoop"

	"task-api/internal/logger"
)

// Logging writes one structured line per request once it completes. The
// request id set by chi's RequestID middleware is attached by the logger.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug(r.Context(), "request started", "method", r.Method, "path", r.URL.Path)

		m := httpsnoop.CaptureMetrics(next, w, r)

		kv := []any{
			"method", r.Method,
			"route", routePattern(r),
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration_ms", m.Duration.Milliseconds(),
			"remote_ip", r.RemoteAddr,
		}
		if m.Code >= http.StatusInternalServerError {
			logger.Warn(r.Context(), "request completed", kv...)
			return
		}
		logger.Info(r.Context(), "request completed", kv...)
	})
}
