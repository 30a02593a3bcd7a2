package httpapi

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// statusWriter remembers the status code a handler wrote.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestLog logs one line per request: method, path, status, elapsed time.
// Server errors are promoted to warning so they surface without debug logging
// turned on.
func requestLog(log *logrus.Entry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		fields := logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  sw.status,
			"elapsed": time.Since(start).Round(time.Millisecond).String(),
		}
		if sw.status >= http.StatusInternalServerError {
			log.WithFields(fields).Warn("request failed")
			return
		}
		log.WithFields(fields).Debug("request")
	})
}
