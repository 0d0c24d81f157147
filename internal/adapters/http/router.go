package httpadapter

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/kirillkom/provider-intel/internal/core/ports"
)

// PendingRunCounter reports runs still waiting for chunks.
type PendingRunCounter interface {
	PendingRuns() int
}

// Router serves the worker's admin surface.
type Router struct {
	pipeline ports.PipelineRunner
	pending  PendingRunCounter
	metrics  http.Handler

	// one triggered run at a time
	runMu sync.Mutex
}

func NewRouter(pipeline ports.PipelineRunner, pending PendingRunCounter, metrics http.Handler) *Router {
	return &Router{
		pipeline: pipeline,
		pending:  pending,
		metrics:  metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}
	mux.HandleFunc("/v1/runs", rt.triggerRun)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok"}
	if rt.pending != nil {
		payload["pending_runs"] = rt.pending.PendingRuns()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) triggerRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.pipeline == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "pipeline is not configured"})
		return
	}
	if !rt.runMu.TryLock() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
		return
	}
	defer rt.runMu.Unlock()

	summary, err := rt.pipeline.Run(r.Context())
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{
			"error":      err.Error(),
			"request_id": requestIDFromContext(r.Context()),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, summary)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
