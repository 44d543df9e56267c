package server

import (
	"errors"
	"fmt"
	"net/http"
)

// HandleHealthz responds to liveness checks by checking store connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the store and any extra checks answer and
// at least one driver has completed a poll cycle.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"store", func() error { return h.store.Ping(r.Context()) }},
		{"drivers", func() error {
			statuses := h.status()
			if len(statuses) == 0 {
				return errors.New("no tournament drivers running")
			}
			for _, s := range statuses {
				if !s.LastCycle.IsZero() {
					return nil
				}
			}
			return fmt.Errorf("%d drivers, none has completed a cycle", len(statuses))
		}},
	}
	for _, c := range h.extra {
		checks = append(checks, struct {
			name string
			fn   func() error
		}{c.Name, func() error { return c.Ping(r.Context()) }})
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
