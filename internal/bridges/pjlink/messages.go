package pjlink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MQTT message types exchanged between Gray Logic Core and the PJLink
// bridge. The envelope shapes match the other Gray Logic bridges.

// protocolName is the protocol identifier carried on acks and state.
const protocolName = "pjlink"

// CommandMessage is sent from Core to the bridge to control a projector.
// Topic: graylogic/command/pjlink/{projector_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acks.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the projector ID.
	DeviceID string `json:"device_id"`

	// Command is the command name, e.g. "power_on" or "input".
	Command string `json:"command"`

	// Parameters contains command-specific values, e.g. {"code": 31}.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated, e.g. "api" or "mqtt".
	Source string `json:"source"`

	// UserID is the user who triggered the command (if applicable).
	UserID string `json:"user_id,omitempty"`
}

// UnmarshalJSON tolerates a missing or empty timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was queued for the projector.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command was rejected before queuing.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/pjlink/{projector_id}
//
// Accepted means queued, not executed: the outcome arrives later as state
// and event messages.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// Address is the projector host.
	Address string `json:"address"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// ProjectorState is the full snapshot published on the state topic and
// returned by the API.
type ProjectorState struct {
	Power           string            `json:"power"`
	PowerCode       int               `json:"power_code"`
	Input           int               `json:"input"`
	AudioMuted      bool              `json:"audio_muted"`
	VideoMuted      bool              `json:"video_muted"`
	MuteCode        int               `json:"mute_code"`
	LampHours       int               `json:"lamp_hours"`
	Errors          map[string]string `json:"errors"`
	ErrorMask       int               `json:"error_mask"`
	ConnectionError bool              `json:"connection_error"`
	Pending         PendingSnapshot   `json:"pending"`
}

// PendingSnapshot is the JSON view of PendingState.
type PendingSnapshot struct {
	Power      string `json:"power"`
	Input      int    `json:"input"`
	AudioMuted bool   `json:"audio_muted"`
	VideoMuted bool   `json:"video_muted"`
}

// NewProjectorState builds the published snapshot from engine state.
func NewProjectorState(c ConfirmedState, p PendingState) ProjectorState {
	errs := make(map[string]string, subsystemCount)
	for _, sub := range Subsystems() {
		errs[sub.String()] = c.Severities[sub].String()
	}
	return ProjectorState{
		Power:           c.Power.String(),
		PowerCode:       int(c.Power),
		Input:           c.Input,
		AudioMuted:      c.AudioMuted,
		VideoMuted:      c.VideoMuted,
		MuteCode:        c.MuteCode(),
		LampHours:       c.LampHours,
		Errors:          errs,
		ErrorMask:       c.ErrorMask(),
		ConnectionError: c.ConnectionError,
		Pending: PendingSnapshot{
			Power:      p.Power.String(),
			Input:      p.Input,
			AudioMuted: p.AudioMuted,
			VideoMuted: p.VideoMuted,
		},
	}
}

// StateMessage carries the full projector snapshot.
// Topic: graylogic/state/pjlink/{projector_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     ProjectorState `json:"state"`
	Protocol  string         `json:"protocol"`
	Address   string         `json:"address"`
}

// EventMessage mirrors one engine event.
// Topic: graylogic/event/pjlink/{projector_id}
// QoS: 1, Retained: No
type EventMessage struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Type      string    `json:"type"`
	Data      int       `json:"data"`
	Connected bool      `json:"connected"`

	// Flags names the bits of an error event's mask.
	Flags []string `json:"flags,omitempty"`
}

// NewEventMessage converts an engine event.
func NewEventMessage(e Event) EventMessage {
	msg := EventMessage{
		EventID:   uuid.NewString(),
		Timestamp: e.Time.UTC(),
		DeviceID:  e.Source,
		Type:      e.Type.String(),
		Data:      e.Data,
		Connected: e.Connected,
	}
	if e.Type == EventError {
		msg.Flags = DescribeErrorMask(e.Data)
	}
	return msg
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/pjlink
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge             string            `json:"bridge"`
	Timestamp          time.Time         `json:"timestamp"`
	Status             HealthStatus      `json:"status"`
	Version            string            `json:"version"`
	UptimeSeconds      int64             `json:"uptime_seconds"`
	Statistics         *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged     int               `json:"devices_managed"`
	DevicesUnreachable int               `json:"devices_unreachable"`
	Reason             string            `json:"reason,omitempty"`
}

// BridgeStatistics sums link statistics across projectors.
type BridgeStatistics struct {
	CommandsSent   uint64 `json:"commands_sent"`
	CommandsFailed uint64 `json:"commands_failed"`
	Timeouts       uint64 `json:"timeouts"`
	AuthFailures   uint64 `json:"auth_failures"`
	QueueDepth     int    `json:"queue_depth"`
}

// RequestMessage is sent from Core for request/response operations.
// Topic: graylogic/request/pjlink/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is one of "read_state", "read_all" or "list".
	Action string `json:"action"`

	DeviceID   string         `json:"device_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResponseMessage answers a RequestMessage.
// Topic: graylogic/response/pjlink/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates an acknowledgment for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  protocolName,
		Address:   address,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed, address)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message for a projector.
func NewStateMessage(deviceID, address string, state ProjectorState) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  protocolName,
		Address:   address,
	}
}

// NewLWTMessage creates the Last Will and Testament message. The broker
// publishes it if the bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

func newErrorResponse(requestID, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Error:     &ResponseError{Code: code, Message: message},
	}
}

// Topic helpers

// TopicPrefix is the base topic for all Gray Logic messages.
const TopicPrefix = "graylogic"

// CommandTopic returns the command topic for a projector.
// Example: graylogic/command/pjlink/hall
func CommandTopic(projectorID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocolName, projectorID)
}

// AckTopic returns the acknowledgment topic for a projector.
func AckTopic(projectorID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocolName, projectorID)
}

// StateTopic returns the retained state topic for a projector.
func StateTopic(projectorID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocolName, projectorID)
}

// EventTopic returns the event topic for a projector.
func EventTopic(projectorID string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, protocolName, projectorID)
}

// HealthTopic returns the bridge health topic.
// Example: graylogic/health/pjlink
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocolName)
}

// RequestTopic returns the topic for a request.
func RequestTopic(requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, protocolName, requestID)
}

// ResponseTopic returns the topic for a response.
func ResponseTopic(requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, protocolName, requestID)
}

// CommandSubscribeTopic returns the subscription pattern for all commands.
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocolName)
}

// RequestSubscribeTopic returns the subscription pattern for all requests.
func RequestSubscribeTopic() string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefix, protocolName)
}
