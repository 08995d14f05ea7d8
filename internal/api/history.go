package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-pjlink/internal/eventlog"
)

// handleListEvents returns a projector's event history, most recent first.
//
// Query parameters:
//   - since: RFC3339 lower bound (inclusive)
//   - limit: page size, default 50, max 200
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event history is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := s.fleet.Projector(id); !ok {
		writeNotFound(w, "projector not found")
		return
	}

	q := r.URL.Query()

	var since time.Time
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		since = t
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	limit = eventlog.ClampLimit(limit)

	entries, err := s.history.List(r.Context(), id, since, limit)
	if err != nil {
		s.logger.Error("listing event history failed", "projector_id", id, "error", err)
		writeInternalError(w, "failed to read event history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projector_id": id,
		"events":       entries,
		"count":        len(entries),
		"limit":        limit,
	})
}
