package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-pjlink/internal/bridges/pjlink"
	"github.com/nerrad567/gray-logic-pjlink/internal/eventlog"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Fleet is the view of the PJLink bridge the API needs.
// Implemented by *pjlink.Bridge.
type Fleet interface {
	Summaries() []pjlink.ProjectorSummary
	Projector(id string) (*pjlink.Projector, bool)
	Projectors() []*pjlink.Projector
	ProjectorConfig(id string) (pjlink.ProjectorConfig, bool)
	Dispatch(projectorID, command string, params map[string]any) error
	FleetStats() pjlink.FleetStats
	AddListener(l pjlink.Listener)
	RemoveListener(l pjlink.Listener)
}

// TelemetryQuerier reads recorded projector fields. Implemented by
// *influxdb.Client.
type TelemetryQuerier interface {
	QueryProjectorField(ctx context.Context, q influxdb.FieldQuery) ([]influxdb.FieldPoint, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Fleet    Fleet

	// History is optional; without it the events route returns 503.
	History eventlog.Repository

	// Telemetry is optional; without it the telemetry route returns 503.
	Telemetry TelemetryQuerier

	// Checks are run by GET /api/v1/health, keyed by component name.
	Checks map[string]HealthCheck

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, metrics and the
// WebSocket hub. Create with New, then Start.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	fleet     Fleet
	history   eventlog.Repository
	telemetry TelemetryQuerier
	checks    map[string]HealthCheck
	version   string

	metrics   *Metrics
	hub       *Hub
	router    http.Handler
	server    *http.Server
	startTime time.Time
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The hub and metrics are registered as bridge listeners immediately so no
// event is missed between New and Start.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Fleet == nil {
		return nil, fmt.Errorf("projector fleet is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		fleet:     deps.Fleet,
		history:   deps.History,
		telemetry: deps.Telemetry,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}

	s.metrics = NewMetrics(deps.Fleet)
	s.hub = NewHub(deps.WS, deps.Logger)
	deps.Fleet.AddListener(s.metrics)
	deps.Fleet.AddListener(s.hub)
	s.router = s.buildRouter()

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
//
// Parameters:
//   - ctx: Parent context for the hub; Close cancels it independently
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close detaches from the bridge, disconnects WebSocket clients and shuts
// the listener down, waiting up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.fleet.RemoveListener(s.hub)
	s.fleet.RemoveListener(s.metrics)

	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
