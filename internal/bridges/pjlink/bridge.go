package pjlink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// topicParts is the number of segments in a command or request topic:
// graylogic/{kind}/pjlink/{id}.
const topicParts = 4

// Bridge runs one Projector per configured projector and connects them to
// MQTT. It handles:
//   - Commands from Core on graylogic/command/pjlink/{id}
//   - Requests on graylogic/request/pjlink/{request_id}
//   - State and event publishing for every engine event
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg    *Config
	mqtt   MQTTClient
	health *HealthReporter

	// Fixed after construction.
	projectors map[string]*Projector
	configs    map[string]ProjectorConfig
	order      []string

	publisher Listener

	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Version is reported in health messages.
	Version string

	// Logger is optional structured logger.
	Logger Logger

	// Dial overrides projector connections. Used by tests.
	Dial DialFunc
}

// ProjectorSummary is a short listing entry.
type ProjectorSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Address         string `json:"address"`
	Power           string `json:"power"`
	ConnectionError bool   `json:"connection_error"`
}

// NewBridge creates the bridge and one engine per configured projector.
// Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	b := &Bridge{
		cfg:        opts.Config,
		mqtt:       opts.MQTTClient,
		projectors: make(map[string]*Projector, len(opts.Config.Projectors)),
		configs:    make(map[string]ProjectorConfig, len(opts.Config.Projectors)),
		logger:     opts.Logger,
	}
	b.publisher = ListenerFunc(b.publishEvent)

	for _, pc := range opts.Config.Projectors {
		popts := opts.Config.ProjectorOptions(pc)
		popts.Dial = opts.Dial
		popts.Logger = opts.Logger

		p := New(popts)
		p.AddListener(b.publisher)

		b.projectors[pc.ID] = p
		b.configs[pc.ID] = pc
		b.order = append(b.order, pc.ID)
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   opts.Version,
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.MQTTClient,
		Fleet:     b,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to MQTT topics, starts every projector engine and begins
// health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	requestTopic := RequestSubscribeTopic()
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	for _, id := range b.order {
		b.projectors[id].Start(ctx)
	}

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"projectors", len(b.order))

	return nil
}

// Stop shuts every engine down in parallel, then stops health reporting.
// Each engine waits for its in-flight exchange, so this can take up to one
// command deadline.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		var g errgroup.Group
		for _, p := range b.projectors {
			g.Go(func() error {
				p.Stop()
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // Stop never fails

		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// Projector returns the engine for id.
func (b *Bridge) Projector(id string) (*Projector, bool) {
	p, ok := b.projectors[id]
	return p, ok
}

// Projectors returns all engines in configuration order.
func (b *Bridge) Projectors() []*Projector {
	out := make([]*Projector, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.projectors[id])
	}
	return out
}

// ProjectorConfig returns the configuration entry for id.
func (b *Bridge) ProjectorConfig(id string) (ProjectorConfig, bool) {
	pc, ok := b.configs[id]
	return pc, ok
}

// Summaries lists every projector with its headline state.
func (b *Bridge) Summaries() []ProjectorSummary {
	out := make([]ProjectorSummary, 0, len(b.order))
	for _, id := range b.order {
		p := b.projectors[id]
		c := p.Confirmed()
		out = append(out, ProjectorSummary{
			ID:              id,
			Name:            b.configs[id].Name,
			Address:         p.Address(),
			Power:           c.Power.String(),
			ConnectionError: c.ConnectionError,
		})
	}
	return out
}

// AddListener registers l on every projector.
func (b *Bridge) AddListener(l Listener) {
	for _, p := range b.projectors {
		p.AddListener(l)
	}
}

// RemoveListener unregisters l from every projector.
func (b *Bridge) RemoveListener(l Listener) {
	for _, p := range b.projectors {
		p.RemoveListener(l)
	}
}

// Dispatch runs a named command against a projector. It is shared by the
// MQTT command handler and the REST API.
//
// Returns:
//   - error: wraps ErrUnknownProjector, ErrUnknownCommand or
//     ErrInvalidParameters on rejection; nil once the command is queued
func (b *Bridge) Dispatch(projectorID, command string, params map[string]any) error {
	p, ok := b.projectors[projectorID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProjector, projectorID)
	}
	return Execute(p, command, params)
}

// FleetStats aggregates link statistics across projectors.
func (b *Bridge) FleetStats() FleetStats {
	fs := FleetStats{Projectors: len(b.order)}
	for _, p := range b.projectors {
		s := p.Stats()
		fs.CommandsSent += s.CommandsSent
		fs.CommandsFailed += s.CommandsFailed
		fs.Timeouts += s.Timeouts
		fs.AuthFailures += s.AuthFailures
		fs.QueueDepth += s.QueueDepth
		if p.ConnectionError() {
			fs.Unreachable++
		}
	}
	return fs
}

// LWT returns the topic and payload to register as the MQTT will message.
func (b *Bridge) LWT() (string, []byte, error) {
	payload, err := b.health.GetLWTPayload()
	if err != nil {
		return "", nil, err
	}
	return b.health.GetLWTTopic(), payload, nil
}

// PublishHealth publishes the current health status immediately. Call it
// after an MQTT reconnect so the retained LWT "offline" is overwritten.
func (b *Bridge) PublishHealth() error {
	return b.health.PublishNow()
}

// handleMQTTMessage routes incoming MQTT messages to handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) != topicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	switch parts[1] {
	case "command":
		b.handleCommand(parts[3], payload)
	case "request":
		b.handleRequest(payload)
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", parts[1]))
	}
}

// handleCommand processes a command message. The projector ID comes from
// the message body, falling back to the topic.
func (b *Bridge) handleCommand(topicID string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = topicID
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	address := ""
	if p, ok := b.projectors[cmd.DeviceID]; ok {
		address = p.Address()
	}

	if err := b.Dispatch(cmd.DeviceID, cmd.Command, cmd.Parameters); err != nil {
		b.publishAck(NewAckError(cmd, address, AckErrorCode(err), err.Error()))
		b.logError("command rejected", err)
		return
	}
	b.publishAck(NewAckMessage(cmd, AckAccepted, address))
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(ack.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// handleRequest processes a request message.
func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		return
	}

	b.logInfo("received request",
		"request_id", req.RequestID,
		"action", req.Action)

	var resp ResponseMessage
	switch req.Action {
	case "read_state":
		resp = b.handleReadState(req)
	case "read_all":
		for _, p := range b.projectors {
			p.QueryAll()
		}
		resp = ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   true,
			Data: map[string]any{
				"projectors": len(b.order),
				"message":    "queries queued, state updates will follow",
			},
		}
	case "list":
		resp = ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   true,
			Data:      map[string]any{"projectors": b.Summaries()},
		}
	default:
		resp = newErrorResponse(req.RequestID, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown action: %s", req.Action))
	}

	respPayload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}
	if err := b.mqtt.Publish(ResponseTopic(req.RequestID), respPayload, 1, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

// handleReadState returns the current snapshot and queues a refresh.
func (b *Bridge) handleReadState(req RequestMessage) ResponseMessage {
	if req.DeviceID == "" {
		return newErrorResponse(req.RequestID, ErrCodeInvalidParameters, "device_id is required")
	}
	p, ok := b.projectors[req.DeviceID]
	if !ok {
		return newErrorResponse(req.RequestID, ErrCodeNotConfigured,
			fmt.Sprintf("projector %s not configured", req.DeviceID))
	}

	p.QueryAll()
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"state": NewProjectorState(p.Confirmed(), p.Pending()),
		},
	}
}

// publishEvent mirrors an engine event to the event topic and republishes
// the full retained state.
func (b *Bridge) publishEvent(e Event) {
	p, ok := b.projectors[e.Source]
	if !ok {
		return
	}

	evPayload, err := json.Marshal(NewEventMessage(e))
	if err != nil {
		b.logError("failed to marshal event", err)
		return
	}
	if err := b.mqtt.Publish(EventTopic(e.Source), evPayload, 1, false); err != nil {
		b.logError("failed to publish event", err)
	}

	state := NewStateMessage(e.Source, p.Address(), NewProjectorState(p.Confirmed(), p.Pending()))
	statePayload, err := json.Marshal(state)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(StateTopic(e.Source), statePayload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}

	if e.Type == EventError && e.Data&ErrorConnection != 0 {
		if err := b.health.PublishNow(); err != nil {
			b.logError("failed to publish health", err)
		}
	}
}

// SetLogger sets the logger for the bridge, its engines and the health
// reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
	for _, p := range b.projectors {
		p.SetLogger(logger)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
