// Package server is the bot's public HTTP endpoint: the checkout pages of the
// payment widget and a health check.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/config"
	"pjc-registration/internal/payments"
	"pjc-registration/internal/util"
)

func New(cfg config.Config, widget payments.Widget) *http.Server {
	mux := http.NewServeMux()

	widget.Routes(mux)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"provider": widget.Name(),
			"ts":       util.NowISO(),
		})
	})

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": rec.status,
			"took":   time.Since(start).Round(time.Millisecond),
		}).Debug("http request")
	})
}
