// Package control implements the plan's read-only control surface
// (C13): /status, /healthz, /metrics, following the teacher's
// gorilla/mux router plus recover-middleware shape.
package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/switchyard/flow/internal/plan"
)

// StationStatus is one station's reported backlog/threshold state.
type StationStatus struct {
	Stop      int `json:"stop"`
	Backlog   int `json:"backlog"`
	Threshold int `json:"threshold"`
}

// Handler serves the control surface over a running Plan.
type Handler struct {
	plan *plan.Plan
	log  zerolog.Logger
}

// NewRouter builds the control-plane router over p.
func NewRouter(p *plan.Plan, log zerolog.Logger) *mux.Router {
	h := &Handler{plan: p, log: log}

	router := mux.NewRouter()
	router.Use(h.recover)
	router.HandleFunc("/healthz", h.healthz).Methods("GET")
	router.HandleFunc("/status", h.status).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

// recover mirrors the teacher's API router's Recover middleware: a
// panicking handler returns 500 instead of taking the process down.
func (h *Handler) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("control: handler panic")
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	stations := make([]StationStatus, 0, len(h.plan.Platforms))
	for stop, platform := range h.plan.Platforms {
		stations = append(stations, StationStatus{
			Stop:      stop,
			Backlog:   len(platform.Incoming),
			Threshold: platform.Threshold,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stations":     stations,
		"sources":      len(h.plan.Sources),
		"destinations": len(h.plan.Destinations),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
