package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	MeasurementProjector      = "projector"
	MeasurementProjectorEvent = "projector_event"
)

// ProjectorSample is one snapshot of a projector's confirmed state.
type ProjectorSample struct {
	Power           int
	Input           int
	AudioMuted      bool
	VideoMuted      bool
	LampHours       int
	ErrorMask       int
	ConnectionError bool
}

// WriteProjectorSample records a state snapshot under the "projector"
// measurement, tagged by projector_id. The write is non-blocking.
//
// Parameters:
//   - projectorID: Configured projector identifier
//   - sample: Confirmed state to record
//   - at: Observation time
func (c *Client) WriteProjectorSample(projectorID string, sample ProjectorSample, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementProjector,
		map[string]string{"projector_id": projectorID},
		map[string]interface{}{
			"power":            sample.Power,
			"input":            sample.Input,
			"audio_muted":      sample.AudioMuted,
			"video_muted":      sample.VideoMuted,
			"lamp_hours":       sample.LampHours,
			"error_mask":       sample.ErrorMask,
			"connection_error": sample.ConnectionError,
		},
		at,
	)
	c.writeAPI.WritePoint(point)
}

// WriteProjectorEvent records one change event under "projector_event",
// tagged by projector_id and event type.
func (c *Client) WriteProjectorEvent(projectorID, eventType string, data int, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementProjectorEvent,
		map[string]string{
			"projector_id": projectorID,
			"type":         eventType,
		},
		map[string]interface{}{"data": data},
		at,
	)
	c.writeAPI.WritePoint(point)
}
