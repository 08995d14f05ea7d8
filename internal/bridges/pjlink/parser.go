package pjlink

import (
	"strconv"
	"strings"
	"time"
)

// Response prefixes and suffixes.
const (
	prefixPower      = "%1POWR="
	prefixInput      = "%1INPT="
	prefixAVMute     = "%1AVMT="
	prefixErrStatus  = "%1ERST="
	prefixLamp       = "%1LAMP="
	prefixInputList  = "%1INST="
	greetingNoAuth   = "PJLINK 0"
	greetingAuth     = "PJLINK 1 "
	markerAuthError  = " ERRA"
	suffixOK         = "OK"
	suffixUndefined  = "ERR1"
	suffixOutOfRange = "ERR2"
	suffixUnavail    = "ERR3"
	suffixFailure    = "ERR4"

	// payloadOffset is where the value starts in every "%1XXXX=" response.
	payloadOffset = 7

	// errStatusLineLen is the only ERST response length that is parsed.
	errStatusLineLen = payloadOffset + subsystemCount
)

// ParseResult reports what the parser did with a line.
type ParseResult struct {
	// AuthRejected is set when the projector answered ERRA. The session
	// closes the socket and treats the exchange as failed.
	AuthRejected bool

	// Recognised is set when the line matched a known response shape and
	// was acted on. Unrecognised lines still complete the exchange.
	Recognised bool
}

// ResponseParser turns response lines into state changes and events.
//
// It is the only writer of confirmed state. Pending state is touched in two
// cases: a rejected change (ERR2) rolls pending back to confirmed, and a
// query result carries pending along when no change was outstanding for
// that field. Events are dispatched synchronously on the calling goroutine
// after the state lock is released.
type ResponseParser struct {
	source   string
	state    *deviceState
	notifier *Notifier
	now      func() time.Time
}

func newResponseParser(source string, state *deviceState, notifier *Notifier) *ResponseParser {
	return &ResponseParser{
		source:   source,
		state:    state,
		notifier: notifier,
		now:      time.Now,
	}
}

// Parse interprets one response line. Greeting lines are handled by the
// session and must not be passed here.
func (p *ResponseParser) Parse(line string) ParseResult {
	if strings.Contains(line, markerAuthError) {
		return ParseResult{AuthRejected: true, Recognised: true}
	}

	// ERR3 is checked on its own; ERR4 only when ERR3 did not match.
	switch {
	case strings.HasSuffix(line, suffixUndefined):
		p.emit(EventError, ErrorUndefinedCommand)
		return ParseResult{Recognised: true}
	case strings.HasSuffix(line, suffixUnavail):
		p.emit(EventError, ErrorUnavailableTime)
		return ParseResult{Recognised: true}
	case strings.HasSuffix(line, suffixFailure):
		p.emit(EventError, ErrorProjectorFailure)
		return ParseResult{Recognised: true}
	}

	switch {
	case strings.HasPrefix(line, prefixPower):
		return ParseResult{Recognised: p.parsePower(line)}
	case strings.HasPrefix(line, prefixInput):
		return ParseResult{Recognised: p.parseInput(line)}
	case strings.HasPrefix(line, prefixAVMute):
		return ParseResult{Recognised: p.parseAVMute(line)}
	case strings.HasPrefix(line, prefixErrStatus):
		return ParseResult{Recognised: p.parseErrorStatus(line)}
	case strings.HasPrefix(line, prefixLamp):
		return ParseResult{Recognised: p.parseLamp(line)}
	case strings.HasPrefix(line, prefixInputList):
		// Input list enumeration is not parsed.
		return ParseResult{Recognised: true}
	}

	return ParseResult{}
}

func (p *ResponseParser) parsePower(line string) bool {
	var power PowerState
	if strings.HasSuffix(line, suffixOK) {
		p.state.update(func(c *ConfirmedState, pend *PendingState) {
			c.Power = pend.Power
			power = c.Power
		})
		p.emit(EventPower, int(power))
		return true
	}

	code, err := strconv.Atoi(strings.TrimSpace(line[payloadOffset:]))
	if err != nil || code < int(PowerOff) || code > int(PowerWarming) {
		return false
	}
	p.state.update(func(c *ConfirmedState, pend *PendingState) {
		follow := pend.Power == c.Power
		c.Power = PowerState(code)
		if follow {
			pend.Power = c.Power
		}
		power = c.Power
	})
	p.emit(EventPower, int(power))
	return true
}

func (p *ResponseParser) parseInput(line string) bool {
	var input int
	switch {
	case strings.HasSuffix(line, suffixOK):
		p.state.update(func(c *ConfirmedState, pend *PendingState) {
			c.Input = pend.Input
			input = c.Input
		})
		p.emit(EventInput, input)
		return true

	case strings.HasSuffix(line, suffixOutOfRange):
		p.state.update(func(c *ConfirmedState, pend *PendingState) {
			pend.Input = c.Input
		})
		p.emit(EventInput, InputErrorNonexistentSource)
		return true
	}

	// Only the input class digit is read from a query response.
	if len(line) < payloadOffset+1 {
		return false
	}
	class, err := strconv.Atoi(line[payloadOffset : payloadOffset+1])
	if err != nil {
		return false
	}
	p.state.update(func(c *ConfirmedState, pend *PendingState) {
		if class > 0 {
			follow := pend.Input == c.Input
			c.Input = class
			if follow {
				pend.Input = c.Input
			}
		}
		input = c.Input
	})
	p.emit(EventInput, input)
	return true
}

func (p *ResponseParser) parseAVMute(line string) bool {
	var code int
	switch {
	case strings.HasSuffix(line, suffixOK):
		p.state.update(func(c *ConfirmedState, pend *PendingState) {
			c.AudioMuted = pend.AudioMuted
			c.VideoMuted = pend.VideoMuted
			code = c.MuteCode()
		})
		p.emit(EventAVMute, code)
		return true

	case strings.HasSuffix(line, suffixOutOfRange):
		p.state.update(func(c *ConfirmedState, pend *PendingState) {
			pend.AudioMuted = c.AudioMuted
			pend.VideoMuted = c.VideoMuted
		})
		p.emit(EventAVMute, MuteErrorCannotMute)
		return true
	}

	if len(line) < payloadOffset+2 {
		return false
	}
	avmt, err := strconv.Atoi(line[payloadOffset : payloadOffset+2])
	if err != nil {
		return false
	}
	p.state.update(func(c *ConfirmedState, pend *PendingState) {
		follow := pend.AudioMuted == c.AudioMuted && pend.VideoMuted == c.VideoMuted
		switch avmt {
		case MuteVideoOnly:
			c.VideoMuted, c.AudioMuted = true, false
		case MuteAudioOnly:
			c.VideoMuted, c.AudioMuted = false, true
		case MuteAudioVideo:
			c.VideoMuted, c.AudioMuted = true, true
		case MuteOff:
			c.VideoMuted, c.AudioMuted = false, false
		}
		if follow {
			pend.AudioMuted, pend.VideoMuted = c.AudioMuted, c.VideoMuted
		}
		code = c.MuteCode()
	})
	p.emit(EventAVMute, code)
	return true
}

func (p *ResponseParser) parseErrorStatus(line string) bool {
	if len(line) != errStatusLineLen {
		return false
	}

	var sev [subsystemCount]Severity
	for i := range sev {
		ch := line[payloadOffset+i]
		if ch < '0' || ch > '2' {
			return false
		}
		sev[i] = Severity(ch - '0')
	}

	p.state.update(func(c *ConfirmedState, _ *PendingState) {
		c.Severities = sev
	})
	p.emit(EventError, PackSeverities(sev))
	return true
}

func (p *ResponseParser) parseLamp(line string) bool {
	end := strings.IndexByte(line[payloadOffset:], ' ')
	if end < 0 {
		return false
	}
	hours, err := strconv.Atoi(line[payloadOffset : payloadOffset+end])
	if err != nil {
		return false
	}
	p.state.update(func(c *ConfirmedState, _ *PendingState) {
		c.LampHours = hours
	})
	p.emit(EventLamp, hours)
	return true
}

// emit stamps Connected from the flag as it stands mid-exchange, before
// Link clears it for a recovering connection.
func (p *ResponseParser) emit(t EventType, data int) {
	confirmed, _ := p.state.snapshot()
	p.notifier.Notify(Event{
		Source:    p.source,
		Type:      t,
		Data:      data,
		Time:      p.now(),
		Connected: !confirmed.ConnectionError,
	})
}
