// Package influxdb records projector telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health checks.
//
// # Measurements
//
//   - projector: confirmed-state snapshots tagged by projector_id
//     (power, input, audio_muted, video_muted, lamp_hours, error_mask,
//     connection_error)
//   - projector_event: one point per change event, tagged by projector_id
//     and type, with the event's integer payload in the data field
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteProjectorEvent("hall", "lamp", 1200, time.Now())
//
// # Error Handling
//
// Writes never block and batch errors are delivered through SetOnError.
// Connection and health check errors are returned directly.
package influxdb
