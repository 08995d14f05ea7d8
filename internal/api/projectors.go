package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-pjlink/internal/bridges/pjlink"
)

// ProjectorDetail is the response body of GET /projectors/{id}.
type ProjectorDetail struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Address string                `json:"address"`
	Port    int                   `json:"port"`
	State   pjlink.ProjectorState `json:"state"`
	Stats   ProjectorStats        `json:"stats"`
	Polling PollingInfo           `json:"polling"`
	Debug   bool                  `json:"debug"`
}

// ProjectorStats is the JSON view of pjlink.Stats.
type ProjectorStats struct {
	CommandsSent   uint64     `json:"commands_sent"`
	CommandsFailed uint64     `json:"commands_failed"`
	Timeouts       uint64     `json:"timeouts"`
	AuthFailures   uint64     `json:"auth_failures"`
	QueueDepth     int        `json:"queue_depth"`
	Session        string     `json:"session"`
	LastExchange   *time.Time `json:"last_exchange,omitempty"`
}

// PollingInfo describes the status cycle.
type PollingInfo struct {
	Disabled        bool `json:"disabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// commandRequest is the body of POST /projectors/{id}/commands.
type commandRequest struct {
	ID         string         `json:"id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
}

// handleListProjectors returns every projector with headline state.
func (s *Server) handleListProjectors(w http.ResponseWriter, _ *http.Request) {
	projectors := s.fleet.Summaries()
	writeJSON(w, http.StatusOK, map[string]any{
		"projectors": projectors,
		"count":      len(projectors),
	})
}

// handleGetProjector returns confirmed and pending state plus link stats.
func (s *Server) handleGetProjector(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := s.fleet.Projector(id)
	if !ok {
		writeNotFound(w, "projector not found")
		return
	}
	pc, _ := s.fleet.ProjectorConfig(id) //nolint:errcheck // present whenever the engine is

	writeJSON(w, http.StatusOK, newProjectorDetail(p, pc))
}

func newProjectorDetail(p *pjlink.Projector, pc pjlink.ProjectorConfig) ProjectorDetail {
	st := p.Stats()
	stats := ProjectorStats{
		CommandsSent:   st.CommandsSent,
		CommandsFailed: st.CommandsFailed,
		Timeouts:       st.Timeouts,
		AuthFailures:   st.AuthFailures,
		QueueDepth:     st.QueueDepth,
		Session:        st.LastState.String(),
	}
	if !st.LastExchange.IsZero() {
		last := st.LastExchange.UTC()
		stats.LastExchange = &last
	}

	return ProjectorDetail{
		ID:      p.ID(),
		Name:    pc.Name,
		Address: p.Address(),
		Port:    p.Port(),
		State:   pjlink.NewProjectorState(p.Confirmed(), p.Pending()),
		Stats:   stats,
		Polling: PollingInfo{
			Disabled:        p.PollingDisabled(),
			IntervalSeconds: int(p.PollInterval() / time.Second),
		},
		Debug: p.Debug(),
	}
}

// handleCommand runs a bridge command through the shared dispatcher and
// answers with the same ack the MQTT path publishes.
//
// Accepted commands return 202; the outcome arrives later as events.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	cmd := pjlink.CommandMessage{
		ID:         req.ID,
		Timestamp:  time.Now().UTC(),
		DeviceID:   id,
		Command:    req.Command,
		Parameters: req.Parameters,
		Source:     "api",
	}
	if claims := claimsFrom(r.Context()); claims != nil {
		cmd.UserID = claims.Subject
	}

	address := ""
	if p, ok := s.fleet.Projector(id); ok {
		address = p.Address()
	}

	if err := s.fleet.Dispatch(id, req.Command, req.Parameters); err != nil {
		s.metrics.commandResult(id, req.Command, false)
		s.logger.Info("api command rejected", "projector_id", id, "command", req.Command, "error", err)
		writeJSON(w, commandErrorStatus(err), pjlink.NewAckError(cmd, address, pjlink.AckErrorCode(err), err.Error()))
		return
	}

	s.metrics.commandResult(id, req.Command, true)
	s.logger.Info("api command accepted", "projector_id", id, "command", req.Command, "command_id", cmd.ID, "user", cmd.UserID)
	writeJSON(w, http.StatusAccepted, pjlink.NewAckMessage(cmd, pjlink.AckAccepted, address))
}

func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, pjlink.ErrUnknownProjector):
		return http.StatusNotFound
	case errors.Is(err, pjlink.ErrUnknownCommand),
		errors.Is(err, pjlink.ErrInvalidParameters),
		errors.Is(err, pjlink.ErrNoAddress):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
