package middleware

import (
	"log"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Trace logs one line per request with correlation id, outcome and timing.
func Trace(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			if logger != nil {
				logger.Printf(
					"trace request_id=%s method=%s path=%s status=%d duration_ms=%d",
					GetRequestID(r.Context()),
					r.Method,
					r.URL.Path,
					recorder.status,
					time.Since(start).Milliseconds(),
				)
			}
		})
	}
}
