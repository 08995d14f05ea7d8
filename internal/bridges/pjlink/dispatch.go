package pjlink

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Command names accepted on the command topic and the API.
const (
	CommandPowerOn         = "power_on"
	CommandPowerOff        = "power_off"
	CommandPowerToggle     = "power_toggle"
	CommandInput           = "input"
	CommandMuteAudio       = "mute_audio"
	CommandUnmuteAudio     = "unmute_audio"
	CommandMuteVideo       = "mute_video"
	CommandUnmuteVideo     = "unmute_video"
	CommandQueryAll        = "query_all"
	CommandQueryPower      = "query_power"
	CommandQueryInput      = "query_input"
	CommandQueryAVMute     = "query_av_mute"
	CommandQueryErrors     = "query_errors"
	CommandQueryLamp       = "query_lamp"
	CommandQueryInputList  = "query_input_list"
	CommandSetPolling      = "set_polling"
	CommandSetPollInterval = "set_poll_interval"
	CommandSetDebug        = "set_debug"
	CommandRaw             = "raw"
)

// Execute applies a named command to p.
//
// Parameters:
//   - p: Target projector
//   - command: One of the Command* names
//   - params: Command parameters as decoded from JSON
//
// Returns:
//   - error: wraps ErrUnknownCommand or ErrInvalidParameters on rejection
func Execute(p *Projector, command string, params map[string]any) error {
	switch command {
	case CommandPowerOn:
		p.PowerOn()
	case CommandPowerOff:
		p.PowerOff()
	case CommandPowerToggle:
		// Warming counts as on so a second press during warm-up turns it off.
		switch p.Confirmed().Power {
		case PowerOn, PowerWarming:
			p.PowerOff()
		default:
			p.PowerOn()
		}
	case CommandInput:
		code, err := intParam(params, "code")
		if err != nil {
			return err
		}
		if !ValidInput(code) {
			return fmt.Errorf("%w: %w: %d", ErrInvalidParameters, ErrInvalidInput, code)
		}
		p.SwitchInput(code)
	case CommandMuteAudio:
		p.MuteAudio()
	case CommandUnmuteAudio:
		p.UnmuteAudio()
	case CommandMuteVideo:
		p.MuteVideo()
	case CommandUnmuteVideo:
		p.UnmuteVideo()
	case CommandQueryAll:
		p.QueryAll()
	case CommandQueryPower:
		p.QueryPower()
	case CommandQueryInput:
		p.QueryInput()
	case CommandQueryAVMute:
		p.QueryAVMute()
	case CommandQueryErrors:
		p.QueryErrorStatus()
	case CommandQueryLamp:
		p.QueryLamp()
	case CommandQueryInputList:
		p.QueryInputList()
	case CommandSetPolling:
		enabled, err := boolParam(params, "enabled")
		if err != nil {
			return err
		}
		p.SetPollingDisabled(!enabled)
	case CommandSetPollInterval:
		seconds, err := intParam(params, "seconds")
		if err != nil {
			return err
		}
		if seconds < 1 {
			return fmt.Errorf("%w: seconds must be at least 1", ErrInvalidParameters)
		}
		p.SetPollInterval(time.Duration(seconds) * time.Second)
	case CommandSetDebug:
		enabled, err := boolParam(params, "enabled")
		if err != nil {
			return err
		}
		p.SetDebug(enabled)
	case CommandRaw:
		line, err := stringParam(params, "line")
		if err != nil {
			return err
		}
		if err := p.SendRaw(line); err != nil {
			if errors.Is(err, ErrInvalidParameters) {
				return fmt.Errorf("%w: line must start with %%1", ErrInvalidParameters)
			}
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
	return nil
}

// AckErrorCode maps a dispatch error to an ack error code.
func AckErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownProjector):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, ErrNoAddress):
		return ErrCodeInvalidParameters
	default:
		return ErrCodeBridgeError
	}
}

func intParam(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing '%s' parameter", ErrInvalidParameters, key)
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: '%s' must be a whole number", ErrInvalidParameters, key)
		}
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("%w: '%s' must be a number", ErrInvalidParameters, key)
	}
}

func boolParam(params map[string]any, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, fmt.Errorf("%w: missing '%s' parameter", ErrInvalidParameters, key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: '%s' must be a boolean", ErrInvalidParameters, key)
	}
	return b, nil
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%w: missing '%s' parameter", ErrInvalidParameters, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: '%s' must be a non-empty string", ErrInvalidParameters, key)
	}
	return s, nil
}
