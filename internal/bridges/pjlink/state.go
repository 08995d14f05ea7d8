package pjlink

import "sync"

// ConfirmedState is the device state as last reported by a response.
type ConfirmedState struct {
	Power           PowerState
	Input           int
	AudioMuted      bool
	VideoMuted      bool
	LampHours       int
	Severities      [subsystemCount]Severity
	ConnectionError bool
}

// ErrorMask packs the subsystem severities into an Error event mask.
func (c ConfirmedState) ErrorMask() int {
	return PackSeverities(c.Severities)
}

// MuteCode returns the AVMT code matching the confirmed mute flags.
func (c ConfirmedState) MuteCode() int {
	return muteCode(c.AudioMuted, c.VideoMuted)
}

// PendingState holds the optimistic targets set when a command is issued.
type PendingState struct {
	Power      PowerState
	Input      int
	AudioMuted bool
	VideoMuted bool

	// AudioRestore is the audio mute flag to put back when video is unmuted.
	AudioRestore bool
}

// deviceState pairs confirmed and pending state under one lock.
//
// Confirmed fields are written only by the response parser. Pending fields
// are written by facade command methods and rolled back by the parser when
// the projector rejects a change.
type deviceState struct {
	mu        sync.RWMutex
	confirmed ConfirmedState
	pending   PendingState
}

func newDeviceState() *deviceState {
	return &deviceState{
		confirmed: ConfirmedState{Power: PowerOff, Input: InputRGB1},
		pending:   PendingState{Power: PowerOff, Input: InputRGB1},
	}
}

// snapshot returns copies of both halves.
func (d *deviceState) snapshot() (ConfirmedState, PendingState) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.confirmed, d.pending
}

// update runs fn with the lock held.
func (d *deviceState) update(fn func(c *ConfirmedState, p *PendingState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.confirmed, &d.pending)
}
