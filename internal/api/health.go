package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// ComponentHealth is one entry of the health response.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth runs every registered check. Any failure turns the overall
// status to "degraded" with 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]ComponentHealth, len(names))
	healthy := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name](ctx)
		cancel()

		if err != nil {
			healthy = false
			components[name] = ComponentHealth{Status: "unhealthy", Error: err.Error()}
			continue
		}
		components[name] = ComponentHealth{Status: "healthy"}
	}

	fleet := s.fleet.FleetStats()
	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"components":     components,
		"projectors": map[string]int{
			"total":       fleet.Projectors,
			"unreachable": fleet.Unreachable,
		},
		"websocket_clients": s.hub.ClientCount(),
	})
}

// logLevelRequest is the body of PUT /system/log-level.
type logLevelRequest struct {
	Level string `json:"level"`
}

// handleSetLogLevel changes the daemon's log level at runtime.
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req logLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	switch req.Level {
	case "debug", "info", "warn", "error":
	default:
		writeBadRequest(w, "level must be one of debug, info, warn, error")
		return
	}

	s.logger.SetLevel(req.Level)
	s.logger.Info("log level changed", "level", req.Level, "by", claimsFrom(r.Context()).Subject)
	writeJSON(w, http.StatusOK, map[string]string{"level": req.Level})
}
