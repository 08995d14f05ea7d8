package pjlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// HealthReporter manages periodic health status reporting.
// It publishes health messages to MQTT at regular intervals.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	fleet     FleetSource

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// FleetSource supplies aggregate projector statistics. *Bridge implements it.
type FleetSource interface {
	FleetStats() FleetStats
}

// FleetStats aggregates link statistics across all projectors.
type FleetStats struct {
	Projectors     int
	Unreachable    int
	CommandsSent   uint64
	CommandsFailed uint64
	Timeouts       uint64
	AuthFailures   uint64
	QueueDepth     int
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Fleet     FleetSource
}

// NewHealthReporter creates a new health reporter. Call Start to begin
// reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		fleet:     cfg.Fleet,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// GetLWTPayload returns the Last Will and Testament payload to set as the
// MQTT will message.
func (h *HealthReporter) GetLWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.bridgeID))
}

// GetLWTTopic returns the topic for the Last Will and Testament.
func (h *HealthReporter) GetLWTTopic() string {
	return HealthTopic()
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status. Any unreachable
// projector degrades the bridge.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	if h.fleet != nil {
		stats := h.fleet.FleetStats()
		if stats.Unreachable > 0 {
			return HealthDegraded, fmt.Sprintf("%d of %d projectors unreachable", stats.Unreachable, stats.Projectors)
		}
	}

	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	var stats FleetStats
	if h.fleet != nil {
		stats = h.fleet.FleetStats()
	}

	msg := HealthMessage{
		Bridge:             h.bridgeID,
		Timestamp:          time.Now().UTC(),
		Status:             status,
		Version:            h.version,
		UptimeSeconds:      int64(time.Since(h.startTime).Seconds()),
		DevicesManaged:     stats.Projectors,
		DevicesUnreachable: stats.Unreachable,
		Reason:             reason,
		Statistics: &BridgeStatistics{
			CommandsSent:   stats.CommandsSent,
			CommandsFailed: stats.CommandsFailed,
			Timeouts:       stats.Timeouts,
			AuthFailures:   stats.AuthFailures,
			QueueDepth:     stats.QueueDepth,
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return h.publisher.Publish(HealthTopic(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
