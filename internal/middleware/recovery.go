package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"benchd.sh/internal/observability"
)

// RecoveryMiddleware turns a handler panic into a 500 response
func RecoveryMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := NewResponseWriter(w)
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("HTTP handler panic",
						zap.String("request_id", GetRequestID(r.Context())),
						zap.String("path", r.URL.Path),
						zap.Any("recovered", rec),
						zap.String("stack", string(debug.Stack())),
					)
					if !rw.headerWritten {
						WriteError(rw, http.StatusInternalServerError, "internal server error")
					}
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := NewResponseWriter(w)

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			reqLogger := logger.WithRequestID(GetRequestID(r.Context())).WithHTTPRequest(r.Method, r.URL.Path, rw.StatusCode(), duration)
			if rw.Hijacked() {
				// stream connections log their own lifecycle
				reqLogger.Debug("HTTP connection upgraded", zap.String("remote_addr", r.RemoteAddr))
				return
			}
			reqLogger.Info("HTTP request",
				zap.Int("bytes", rw.BytesWritten()),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if duration > time.Second {
				reqLogger.Warn("Slow request")
			}
		})
	}
}

// WriteError writes a JSON error body
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
