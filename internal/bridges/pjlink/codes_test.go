package pjlink

import (
	"strings"
	"testing"
)

func TestPackSeverities(t *testing.T) {
	tests := []struct {
		name string
		sev  [subsystemCount]Severity
		want int
	}{
		{name: "all clear", want: 0},
		{
			name: "temperature warning only",
			sev:  [subsystemCount]Severity{0, 0, SeverityWarning, 0, 0, 0},
			want: ErrorTemperatureWarning,
		},
		{
			name: "fan error and filter warning",
			sev:  [subsystemCount]Severity{SeverityError, 0, 0, 0, SeverityWarning, 0},
			want: ErrorFanError | ErrorFilterWarning,
		},
		{
			name: "every subsystem in error",
			sev:  [subsystemCount]Severity{2, 2, 2, 2, 2, 2},
			want: ErrorFanError | ErrorLampError | ErrorTemperatureError | ErrorCoverError | ErrorFilterError | ErrorOtherError,
		},
		{
			name: "mixed",
			sev:  [subsystemCount]Severity{1, 2, 0, 1, 0, 2},
			want: ErrorFanWarning | ErrorLampError | ErrorCoverWarning | ErrorOtherError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PackSeverities(tt.sev)
			if got != tt.want {
				t.Errorf("PackSeverities() = %#04x, want %#04x", got, tt.want)
			}
			if got&^errorStatusMask != 0 {
				t.Errorf("PackSeverities() = %#04x sets bits outside the status mask", got)
			}
			for i, sub := range Subsystems() {
				if s := SeverityOf(got, sub); s != tt.sev[i] {
					t.Errorf("SeverityOf(%s) = %s, want %s", sub, s, tt.sev[i])
				}
			}
		})
	}
}

func TestValidInput(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{10, false},
		{11, true},
		{35, true},
		{59, true},
		{60, false},
		{0, false},
		{-11, false},
	}
	for _, tt := range tests {
		if got := ValidInput(tt.code); got != tt.want {
			t.Errorf("ValidInput(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestMuteCode(t *testing.T) {
	tests := []struct {
		audio, video bool
		want         int
	}{
		{false, false, MuteOff},
		{true, false, MuteAudioOnly},
		{false, true, MuteVideoOnly},
		{true, true, MuteAudioVideo},
	}
	for _, tt := range tests {
		if got := muteCode(tt.audio, tt.video); got != tt.want {
			t.Errorf("muteCode(%v, %v) = %d, want %d", tt.audio, tt.video, got, tt.want)
		}
	}
}

func TestEventTypeRoundTrip(t *testing.T) {
	for _, et := range []EventType{EventError, EventPower, EventInput, EventAVMute, EventLamp} {
		got, ok := ParseEventType(et.String())
		if !ok || got != et {
			t.Errorf("ParseEventType(%q) = %v, %v", et.String(), got, ok)
		}
	}
	if _, ok := ParseEventType("bogus"); ok {
		t.Error("ParseEventType(bogus) should fail")
	}
}

func TestAuthHash(t *testing.T) {
	tests := []struct {
		seed, password, want string
	}{
		{"abcdef0123456789", "secret", "e893a412f0289a9d7f62e0833669f372"},
		{"498e4a67", "JBMIAProjectorLink", "c20cf04d367bd8a42b2d9f3c08d6d019"},
	}
	for _, tt := range tests {
		if got := AuthHash(tt.seed, tt.password); got != tt.want {
			t.Errorf("AuthHash(%q, %q) = %s, want %s", tt.seed, tt.password, got, tt.want)
		}
	}
}

func TestDescribeErrorMask(t *testing.T) {
	tests := []struct {
		mask int
		want string
	}{
		{0, ""},
		{ErrorTemperatureWarning, "temperature:warning"},
		{ErrorFanError | ErrorOtherWarning, "fan:error,other:warning"},
		{ErrorConnection, "connection"},
		{ErrorLampError | ErrorUndefinedCommand | ErrorProjectorFailure, "lamp:error,undefined_command,projector_failure"},
	}
	for _, tt := range tests {
		got := strings.Join(DescribeErrorMask(tt.mask), ",")
		if got != tt.want {
			t.Errorf("DescribeErrorMask(%#04x) = %q, want %q", tt.mask, got, tt.want)
		}
	}
}
