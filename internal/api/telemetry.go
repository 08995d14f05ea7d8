package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/influxdb"
)

// defaultTelemetryWindow is the range read when since is omitted.
const defaultTelemetryWindow = 24 * time.Hour

// handleTelemetry returns one recorded field for a projector.
//
// Query parameters:
//   - field: required, e.g. lamp_hours or power
//   - since, until: RFC3339 bounds, default the last 24 hours
//   - every: Go duration to downsample to the last value per window
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "telemetry is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := s.fleet.Projector(id); !ok {
		writeNotFound(w, "projector not found")
		return
	}

	q := r.URL.Query()
	field := q.Get("field")
	if !influxdb.IsProjectorField(field) {
		writeBadRequest(w, "field must be one of power, input, audio_muted, video_muted, lamp_hours, error_mask, connection_error")
		return
	}

	until := time.Now().UTC()
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(w, "until must be an RFC3339 timestamp")
			return
		}
		until = t
	}
	since := until.Add(-defaultTelemetryWindow)
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		since = t
	}
	if !until.After(since) {
		writeBadRequest(w, "until must be after since")
		return
	}

	var every time.Duration
	if raw := q.Get("every"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < time.Second {
			writeBadRequest(w, "every must be a duration of at least 1s")
			return
		}
		every = d
	}

	points, err := s.telemetry.QueryProjectorField(r.Context(), influxdb.FieldQuery{
		ProjectorID: id,
		Field:       field,
		Start:       since,
		Stop:        until,
		Every:       every,
	})
	if err != nil {
		if errors.Is(err, influxdb.ErrNotConnected) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "telemetry store not connected")
			return
		}
		s.logger.Error("telemetry query failed", "projector_id", id, "field", field, "error", err)
		writeInternalError(w, "failed to read telemetry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projector_id": id,
		"field":        field,
		"since":        since,
		"until":        until,
		"points":       points,
		"count":        len(points),
	})
}
