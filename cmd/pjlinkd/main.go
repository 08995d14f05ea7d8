// pjlinkd - PJLink projector control service
//
// This is the main entry point for pjlinkd. It runs one control engine per
// configured projector and exposes them through:
//   - MQTT command, state, event and health topics (graylogic/*/pjlink/*)
//   - A REST and WebSocket API with Prometheus metrics
//   - An SQLite event history and optional InfluxDB telemetry
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/nerrad567/gray-logic-pjlink/internal/api"
	"github.com/nerrad567/gray-logic-pjlink/internal/bridges/pjlink"
	"github.com/nerrad567/gray-logic-pjlink/internal/eventlog"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-pjlink/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// errMQTTNotReady is returned by the bridge adapter before the broker
// connection exists.
var errMQTTNotReady = errors.New("mqtt client not connected yet")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting pjlinkd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if !cfg.Protocols.PJLink.Enabled {
		return errors.New("protocols.pjlink.enabled is false, nothing to run")
	}

	bridgeCfg, err := pjlink.LoadConfig(cfg.Protocols.PJLink.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading PJLink bridge config: %w", err)
	}
	log.Info("PJLink bridge config loaded",
		"path", cfg.Protocols.PJLink.ConfigFile,
		"projectors", len(bridgeCfg.Projectors),
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// The bridge is built before the broker connection so its offline
	// health message can be registered as the MQTT will.
	adapter := &mqttBridgeAdapter{}
	bridge, err := pjlink.NewBridge(pjlink.BridgeOptions{
		Config:     bridgeCfg,
		MQTTClient: adapter,
		Version:    version,
		Logger:     log.With("component", "pjlink"),
	})
	if err != nil {
		return fmt.Errorf("creating PJLink bridge: %w", err)
	}

	mqttClient, err := connectMQTT(cfg, bridge, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	adapter.setClient(mqttClient)

	var bridgeStarted atomic.Bool
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
		if bridgeStarted.Load() {
			if pubErr := bridge.PublishHealth(); pubErr != nil {
				log.Warn("failed to republish health after reconnect", "error", pubErr)
			}
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	var history eventlog.Repository
	if cfg.History.Enabled {
		repo := eventlog.NewSQLiteRepository(db.DB)
		history = repo

		recorder := eventlog.NewRecorder(repo, 0, log.With("component", "eventlog"))
		recorder.Start(ctx)
		defer func() {
			recorder.Stop()
			if dropped := recorder.Dropped(); dropped > 0 {
				log.Warn("event history dropped events", "count", dropped)
			}
		}()
		bridge.AddListener(recorder)

		pruner, pruneErr := eventlog.NewPruner(eventlog.PrunerConfig{
			Repository: repo,
			Schedule:   cfg.History.PruneSchedule,
			Retention:  cfg.GetRetention(),
			Logger:     log.With("component", "eventlog"),
		})
		if pruneErr != nil {
			return fmt.Errorf("creating history pruner: %w", pruneErr)
		}
		if _, pruneErr := pruner.PruneNow(ctx); pruneErr != nil {
			log.Warn("initial history prune failed", "error", pruneErr)
		}
		pruner.Start(ctx)
		defer pruner.Stop()

		log.Info("event history enabled",
			"retention_days", cfg.History.RetentionDays,
			"prune_schedule", cfg.History.PruneSchedule,
		)
	} else {
		log.Info("event history disabled")
	}

	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		bridge.AddListener(pjlink.NewTelemetryRecorder(bridge, influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting PJLink bridge: %w", err)
	}
	bridgeStarted.Store(true)
	defer func() {
		log.Info("stopping PJLink bridge")
		bridge.Stop()
	}()

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Fleet:    bridge,
		History:  history,
		Checks:   healthChecks(db, mqttClient, influxClient),
		Version:  version,
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	if !cfg.AuthEnabled() {
		log.Warn("API authentication disabled; set security.jwt.secret to enable it")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, bridge, InfluxDB, history, MQTT,
	// database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PJLINKD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PJLINKD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT connects to the broker with the bridge's offline health
// message as the will.
func connectMQTT(cfg *config.Config, bridge *pjlink.Bridge, log *logging.Logger) (*mqtt.Client, error) {
	willTopic, willPayload, err := bridge.LWT()
	if err != nil {
		return nil, fmt.Errorf("building MQTT will: %w", err)
	}

	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{Topic: willTopic, Payload: willPayload})
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"will_topic", willTopic,
	)
	return client, nil
}

// healthChecks builds the component checks served by GET /api/v1/health.
func healthChecks(db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"database": db.HealthCheck,
		"mqtt":     mqttClient.HealthCheck,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
	}
	return checks
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// brokerClient is the part of *mqtt.Client the bridge adapter uses.
type brokerClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The handler signatures differ:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - PJLink bridge: func(topic, payload []byte)
//
// The client is attached after the bridge exists; until then every call
// reports errMQTTNotReady.
type mqttBridgeAdapter struct {
	mu     sync.RWMutex
	client brokerClient
}

func (a *mqttBridgeAdapter) setClient(c brokerClient) {
	a.mu.Lock()
	a.client = c
	a.mu.Unlock()
}

func (a *mqttBridgeAdapter) get() brokerClient {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

// Publish implements pjlink.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c := a.get()
	if c == nil {
		return errMQTTNotReady
	}
	return c.Publish(topic, payload, qos, retained)
}

// Subscribe implements pjlink.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	c := a.get()
	if c == nil {
		return errMQTTNotReady
	}
	return c.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements pjlink.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	c := a.get()
	return c != nil && c.IsConnected()
}
