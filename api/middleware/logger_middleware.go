package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
)

// Logger creates a middleware wrapper around a zap Sugared logger that logs
// HTTP requests.
func Logger(l *zap.SugaredLogger) func(next http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			lw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()
			h.ServeHTTP(lw, r)

			status := lw.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []interface{}{
				"method", r.Method,
				"path", cleanPath(r.URL.Path),
				"status", status,
				"duration_ms", float64(time.Since(t1).Microseconds()) / 1000,
			}
			if q := queryHash(r.URL.RawQuery); q != "" {
				fields = append(fields, "query", q)
			}
			if id := middleware.GetReqID(r.Context()); id != "" {
				fields = append(fields, "request_id", id)
			}
			if status < 500 {
				l.Infow("Request", fields...)
			} else {
				l.Warnw("Request", fields...)
			}
		}
		return http.HandlerFunc(fn)
	}
}
