package httpapi

import "net/http"

// health is an unconditional liveness probe, grounded on the teacher's
// handleHealth (gateway-svc/cmd/main.go): always 200 once the process is
// serving requests at all.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ready reports whether the process can actually serve traffic. This
// deployment has no peer services to probe (spec §9 ambient-stack note:
// "single process has no peer services to address"), so readiness
// degenerates to liveness; it is kept as a distinct endpoint for the
// orchestrator probe contract the teacher's services all expose.
func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}
