package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// AccessLog writes one structured line per request.
func AccessLog(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"latency_ms": time.Since(start).Milliseconds(),
				"req_id":     chiMiddleware.GetReqID(r.Context()),
				"remote":     r.RemoteAddr,
				"bytes":      ww.BytesWritten(),
			})
			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("http")
			case status >= http.StatusBadRequest:
				entry.Warn("http")
			default:
				entry.Info("http")
			}
		})
	}
}
