package observability

import (
	"encoding/json"
	"net/http"
	"sync"
)

// HealthServer exposes /healthz and /readyz. The agent is ready once a
// usable credential is loaded.
type HealthServer struct {
	mu     sync.RWMutex
	ready  bool
	reason string
}

// NewHealthServer creates a health server that starts not ready.
func NewHealthServer() *HealthServer {
	return &HealthServer{reason: "starting"}
}

// SetReady marks the agent ready.
func (h *HealthServer) SetReady() {
	h.mu.Lock()
	h.ready, h.reason = true, ""
	h.mu.Unlock()
}

// SetNotReady marks the agent not ready, reporting reason on /readyz.
func (h *HealthServer) SetNotReady(reason string) {
	h.mu.Lock()
	h.ready, h.reason = false, reason
	h.mu.Unlock()
}

// Ready reports readiness and the last not-ready reason.
func (h *HealthServer) Ready() (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready, h.reason
}

// Handler returns an http.Handler with health and readiness endpoints.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

// Register installs the health endpoints on mux.
func (h *HealthServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready, reason := h.Ready()
	if ready {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": reason})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
