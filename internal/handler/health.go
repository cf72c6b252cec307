package handler

import (
	"net/http"
)

// Checker reports whether a dependency is usable.
type Checker interface {
	IsConnected() bool
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	deps map[string]Checker
}

// NewHealthHandler creates a health handler. deps is empty when the store
// keeps messages in memory.
func NewHealthHandler(deps map[string]Checker) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health. It only proves the process is serving.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, readiness{Status: "healthy"})
}

// Ready handles GET /ready and lists every dependency as up or down.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := readiness{Status: "ready"}
	code := http.StatusOK
	if len(h.deps) > 0 {
		resp.Checks = make(map[string]string, len(h.deps))
	}
	for name, dep := range h.deps {
		if dep != nil && dep.IsConnected() {
			resp.Checks[name] = "up"
			continue
		}
		resp.Checks[name] = "down"
		resp.Status = "not ready"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
