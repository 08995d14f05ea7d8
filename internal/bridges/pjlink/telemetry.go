package pjlink

import (
	"time"

	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/influxdb"
)

// TelemetryWriter receives projector telemetry points.
// Implemented by *influxdb.Client.
type TelemetryWriter interface {
	WriteProjectorSample(projectorID string, sample influxdb.ProjectorSample, at time.Time)
	WriteProjectorEvent(projectorID, eventType string, data int, at time.Time)
}

// ProjectorSource looks up projectors by ID. Implemented by *Bridge.
type ProjectorSource interface {
	Projector(id string) (*Projector, bool)
}

// TelemetryRecorder is a Listener that writes every event, followed by a
// snapshot of the projector's confirmed state.
type TelemetryRecorder struct {
	projectors ProjectorSource
	writer     TelemetryWriter
}

// NewTelemetryRecorder creates a recorder. Register it with Bridge.AddListener.
func NewTelemetryRecorder(projectors ProjectorSource, writer TelemetryWriter) *TelemetryRecorder {
	return &TelemetryRecorder{projectors: projectors, writer: writer}
}

// OnEvent implements Listener.
func (r *TelemetryRecorder) OnEvent(e Event) {
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	r.writer.WriteProjectorEvent(e.Source, e.Type.String(), e.Data, at)

	p, ok := r.projectors.Projector(e.Source)
	if !ok {
		return
	}
	r.writer.WriteProjectorSample(e.Source, SampleOf(p.Confirmed()), at)
}

// SampleOf converts confirmed state into a telemetry sample.
func SampleOf(c ConfirmedState) influxdb.ProjectorSample {
	return influxdb.ProjectorSample{
		Power:           int(c.Power),
		Input:           c.Input,
		AudioMuted:      c.AudioMuted,
		VideoMuted:      c.VideoMuted,
		LampHours:       c.LampHours,
		ErrorMask:       c.ErrorMask(),
		ConnectionError: c.ConnectionError,
	}
}
