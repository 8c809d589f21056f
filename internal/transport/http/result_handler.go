package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"examprep-attempt-service/internal/domain"
	"examprep-attempt-service/internal/engine"
)

// ResultHandler serves summaries for submitted attempts, for review and
// leaderboard screens that navigate back after the live session is gone.
type ResultHandler struct {
	engine *engine.Engine
}

func NewResultHandler(eng *engine.Engine) *ResultHandler {
	return &ResultHandler{engine: eng}
}

// ServeResult handles GET /attempts/{attemptId}/result. Fetching is
// idempotent; clients may simply retry on failure.
func (h *ResultHandler) ServeResult(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("attemptId")
	if attemptID == "" {
		http.Error(w, "missing attemptId", http.StatusBadRequest)
		return
	}

	summary, err := h.engine.Result(r.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMalformedResult):
			http.Error(w, "result details unavailable", http.StatusBadGateway)
		case errors.Is(err, domain.ErrResultFetchFailed):
			http.Error(w, "result temporarily unavailable, retry", http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}
