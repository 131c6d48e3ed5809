package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes read-only session progress while a monitoring run is in
// flight. It never influences the loop.
type Handler struct {
	loop     *Loop
	registry *prometheus.Registry
}

func NewHandler(loop *Loop, registry *prometheus.Registry) *Handler {
	return &Handler{loop: loop, registry: registry}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/api/v1/monitor/status", h.status)
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	return mux
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.loop.Snapshot()

	response := map[string]string{
		"status":      "ok",
		"environment": snapshot.Environment,
		"state":       string(snapshot.State),
	}
	if !snapshot.StartTime.IsZero() {
		response["uptime"] = time.Since(snapshot.StartTime).Round(time.Second).String()
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.loop.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(data)
}
