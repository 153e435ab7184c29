package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"dwelltrack/internal/dwellerr"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFromError maps a dwellerr sentinel to its transport status,
// falling back to a deadline check for contexts cancelled by the
// handler's own operation timeout (spec.md §5).
func statusFromError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return dwellerr.StatusFor(err)
}

// withDeadline derives a request-scoped context bounded by the server's
// operation deadline (spec.md §5).
func (s *Server) withDeadline(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.deadline)
}
