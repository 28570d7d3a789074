package apihttp

import (
	"net/http"
	"time"

	"psur-evidence/internal/audit"
	"psur-evidence/internal/logging"
)

// AccessLog logs one line per request.
func AccessLog(logger *logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(resp, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", resp.status,
				"duration", time.Since(start),
				"client_ip", audit.ClientIP(r),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
