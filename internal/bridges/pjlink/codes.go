package pjlink

import "fmt"

// DefaultPort is the TCP port PJLink projectors listen on.
const DefaultPort = 4352

// PowerState is the projector power status as reported by POWR.
type PowerState int

// Power states. Values match the POWR wire codes.
const (
	PowerOff     PowerState = 0
	PowerOn      PowerState = 1
	PowerCooling PowerState = 2
	PowerWarming PowerState = 3
)

// String returns the lowercase name used in state messages.
func (p PowerState) String() string {
	switch p {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	case PowerCooling:
		return "cooling"
	case PowerWarming:
		return "warming"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// Input codes are two digits: input class (1 RGB, 2 video, 3 digital,
// 4 storage, 5 network) followed by an index 1-9.
const (
	InputRGB1     = 11
	InputRGB9     = 19
	InputVideo1   = 21
	InputVideo9   = 29
	InputDigital1 = 31
	InputDigital9 = 39
	InputStorage1 = 41
	InputStorage9 = 49
	InputNetwork1 = 51
	InputNetwork9 = 59

	// MinInput and MaxInput bound the codes SwitchInput accepts.
	MinInput = InputRGB1
	MaxInput = InputNetwork9

	// InputErrorNonexistentSource is the Input event payload sent when the
	// projector rejects a switch with ERR2.
	InputErrorNonexistentSource = 2
)

// ValidInput reports whether code is inside the accepted input range.
func ValidInput(code int) bool {
	return code >= MinInput && code <= MaxInput
}

// AV mute codes as they appear on the wire and in AVMute events.
const (
	MuteVideoOnly  = 11
	MuteAudioOnly  = 21
	MuteAudioVideo = 31
	MuteOff        = 30

	// MuteErrorCannotMute is the AVMute event payload sent when the
	// projector rejects a mute change with ERR2.
	MuteErrorCannotMute = 2
)

// muteCode derives the AVMT code for a pair of mute flags.
func muteCode(audio, video bool) int {
	switch {
	case audio && video:
		return MuteAudioVideo
	case video:
		return MuteVideoOnly
	case audio:
		return MuteAudioOnly
	default:
		return MuteOff
	}
}

// EventType tags an Event.
type EventType int

// Event types.
const (
	EventError  EventType = 0
	EventPower  EventType = 1
	EventInput  EventType = 2
	EventAVMute EventType = 3
	EventLamp   EventType = 4
)

// String returns the event type name used on MQTT and in the history store.
func (t EventType) String() string {
	switch t {
	case EventError:
		return "error"
	case EventPower:
		return "power"
	case EventInput:
		return "input"
	case EventAVMute:
		return "av_mute"
	case EventLamp:
		return "lamp"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) (EventType, bool) {
	for _, t := range []EventType{EventError, EventPower, EventInput, EventAVMute, EventLamp} {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Error event bitmask.
//
//	| 15 | 14 | 13 | 12 | 11 10 | 9 8    | 7 6   | 5 4  | 3 2  | 1 0 |
//	|Fail|Unav|Undf|Conn| Other | Filter | Cover | Temp | Lamp | Fan |
//
// Each subsystem owns two bits: the low bit is a warning, the high bit an
// error.
const (
	ErrorFanWarning         = 0x0001
	ErrorFanError           = 0x0002
	ErrorLampWarning        = 0x0004
	ErrorLampError          = 0x0008
	ErrorTemperatureWarning = 0x0010
	ErrorTemperatureError   = 0x0020
	ErrorCoverWarning       = 0x0040
	ErrorCoverError         = 0x0080
	ErrorFilterWarning      = 0x0100
	ErrorFilterError        = 0x0200
	ErrorOtherWarning       = 0x0400
	ErrorOtherError         = 0x0800

	ErrorConnection       = 0x1000
	ErrorUndefinedCommand = 0x2000
	ErrorUnavailableTime  = 0x4000
	ErrorProjectorFailure = 0x8000

	// errorStatusMask covers the twelve subsystem bits.
	errorStatusMask = 0x0FFF
)

// Severity is a per-subsystem status from ERST.
type Severity int

// Severity levels. Values match the ERST digits.
const (
	SeverityNone    Severity = 0
	SeverityWarning Severity = 1
	SeverityError   Severity = 2
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Subsystem indexes an ERST digit. The order is the wire order.
type Subsystem int

// Subsystems in ERST order.
const (
	SubsystemFan Subsystem = iota
	SubsystemLamp
	SubsystemTemperature
	SubsystemCover
	SubsystemFilter
	SubsystemOther

	subsystemCount = 6
)

var subsystemNames = [subsystemCount]string{"fan", "lamp", "temperature", "cover", "filter", "other"}

// String returns the subsystem name.
func (s Subsystem) String() string {
	if s < 0 || int(s) >= subsystemCount {
		return fmt.Sprintf("unknown(%d)", int(s))
	}
	return subsystemNames[s]
}

// Subsystems returns all subsystems in ERST order.
func Subsystems() []Subsystem {
	return []Subsystem{SubsystemFan, SubsystemLamp, SubsystemTemperature, SubsystemCover, SubsystemFilter, SubsystemOther}
}

// PackSeverities packs six severities into the low twelve bits of an error
// mask, two bits per subsystem.
func PackSeverities(s [subsystemCount]Severity) int {
	mask := 0
	for i, sev := range s {
		mask |= (int(sev) & 0x3) << (2 * i)
	}
	return mask
}

// SeverityOf extracts the severity of one subsystem from an error mask.
func SeverityOf(mask int, sub Subsystem) Severity {
	if sub < 0 || int(sub) >= subsystemCount {
		return SeverityNone
	}
	bits := (mask >> (2 * int(sub))) & 0x3
	switch {
	case bits&0x2 != 0:
		return SeverityError
	case bits&0x1 != 0:
		return SeverityWarning
	default:
		return SeverityNone
	}
}

// flagNames labels the non-subsystem bits of an error mask.
var flagNames = []struct {
	bit  int
	name string
}{
	{ErrorConnection, "connection"},
	{ErrorUndefinedCommand, "undefined_command"},
	{ErrorUnavailableTime, "unavailable_time"},
	{ErrorProjectorFailure, "projector_failure"},
}

// DescribeErrorMask lists the conditions set in mask, e.g.
// ["temperature:warning", "connection"]. Subsystems come first in ERST
// order, then flags from low bit to high.
func DescribeErrorMask(mask int) []string {
	var out []string
	for _, sub := range Subsystems() {
		if sev := SeverityOf(mask, sub); sev != SeverityNone {
			out = append(out, sub.String()+":"+sev.String())
		}
	}
	for _, f := range flagNames {
		if mask&f.bit != 0 {
			out = append(out, f.name)
		}
	}
	return out
}

// Command lines. Terminators are added by the session.
const (
	cmdPowerOn       = "%1POWR 1"
	cmdPowerOff      = "%1POWR 0"
	cmdPowerQuery    = "%1POWR ?"
	cmdInputQuery    = "%1INPT ?"
	cmdInputListQry  = "%1INST ?"
	cmdMuteBoth      = "%1AVMT 31"
	cmdUnmuteBoth    = "%1AVMT 30"
	cmdUnmuteVideo   = "%1AVMT 10"
	cmdMuteAudioOnly = "%1AVMT 21"
	cmdAVMuteQuery   = "%1AVMT ?"
	cmdErrorQuery    = "%1ERST ?"
	cmdLampQuery     = "%1LAMP ?"
)

// inputCommand builds the INPT select line for a code.
func inputCommand(code int) string {
	return fmt.Sprintf("%%1INPT %d", code)
}
