package pjlink

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures a Projector.
type Options struct {
	// ID names the projector on events, MQTT topics and history rows.
	ID string

	// Address is the projector host. Empty leaves the engine idle until
	// SetAddress is called.
	Address string

	// Port is the PJLink TCP port. Default: DefaultPort.
	Port int

	// Password answers authentication challenges. Empty if none.
	Password string

	// Deadline bounds one command exchange. Default: DefaultDeadline.
	Deadline time.Duration

	// PollInterval is the time between status cycles. Default:
	// DefaultPollInterval.
	PollInterval time.Duration

	// DisablePolling turns off the status cycle and the follow-up queries
	// issued after power and mute commands.
	DisablePolling bool

	// Debug enables per-line wire tracing.
	Debug bool

	// Dial overrides how connections are opened. Used by tests.
	Dial DialFunc

	// Logger is an optional structured logger.
	Logger Logger
}

// Stats combines link statistics with the queue depth.
type Stats struct {
	LinkStats
	QueueDepth int
}

// pollBacklogWarn is the queue depth (four poll cycles) at which a poll
// tick logs a backlog warning.
const pollBacklogWarn = 20

// Projector is the public control surface for one PJLink projector.
//
// Command methods never block on the network. They update pending state and
// push protocol lines onto a queue that a single worker drains, one
// connection per line. Results arrive as events on registered listeners.
//
// Lifecycle:
//
//	p := pjlink.New(pjlink.Options{ID: "hall", Address: "10.0.0.20"})
//	p.AddListener(l)
//	p.Start(ctx)
//	defer p.Stop()
//
// Thread Safety: All methods are safe for concurrent use.
type Projector struct {
	id       string
	state    *deviceState
	notifier *Notifier
	link     *Link
	queue    *CommandQueue
	poller   *Poller

	pollingDisabled atomic.Bool
	debug           atomic.Bool
	backlogWarned   atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a projector engine. Call Start to run the queue worker and
// poller.
func New(opts Options) *Projector {
	state := newDeviceState()
	notifier := NewNotifier()

	p := &Projector{
		id:       opts.ID,
		state:    state,
		notifier: notifier,
	}
	p.link = newLink(LinkOptions{
		Source:   opts.ID,
		Deadline: opts.Deadline,
		Dial:     opts.Dial,
	}, state, notifier)
	p.queue = NewCommandQueue(p.link)
	p.poller = NewPoller(opts.PollInterval, p.poll)

	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	p.link.SetTarget(Target{Address: opts.Address, Port: port, Password: opts.Password})
	p.pollingDisabled.Store(opts.DisablePolling)
	p.SetDebug(opts.Debug)
	if opts.Logger != nil {
		p.SetLogger(opts.Logger)
	}
	return p
}

// ID returns the projector identifier.
func (p *Projector) ID() string {
	return p.id
}

// Start launches the command worker and the poller. If an address is
// configured a full status query is queued straight away.
func (p *Projector) Start(ctx context.Context) {
	p.queue.Start(ctx)
	p.poller.Start(ctx)
	if p.Address() != "" {
		p.QueryAll()
	}
}

// Stop halts polling, lets the in-flight exchange finish and drops queued
// commands. Safe to call multiple times.
func (p *Projector) Stop() {
	p.poller.Stop()
	p.queue.Stop()
}

// SetLogger sets the logger for the engine and its link.
func (p *Projector) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
	p.link.SetLogger(logger)
	p.notifier.SetLogger(logger)
}

// AddListener registers l for events. Duplicate registrations are ignored.
func (p *Projector) AddListener(l Listener) {
	p.notifier.Add(l)
}

// RemoveListener unregisters l.
func (p *Projector) RemoveListener(l Listener) {
	p.notifier.Remove(l)
}

// --- Configuration ---

// SetAddress changes the projector host and, when non-empty, queues a full
// status query.
func (p *Projector) SetAddress(address string) {
	t := p.link.Target()
	t.Address = address
	p.link.SetTarget(t)
	if address != "" {
		p.QueryAll()
	}
}

// Address returns the projector host.
func (p *Projector) Address() string {
	return p.link.Target().Address
}

// SetPort changes the projector TCP port.
func (p *Projector) SetPort(port int) {
	t := p.link.Target()
	t.Port = port
	p.link.SetTarget(t)
}

// Port returns the projector TCP port.
func (p *Projector) Port() int {
	return p.link.Target().Port
}

// SetPassword changes the password used to answer challenges.
func (p *Projector) SetPassword(password string) {
	t := p.link.Target()
	t.Password = password
	p.link.SetTarget(t)
}

// SetDebug toggles wire tracing.
func (p *Projector) SetDebug(enabled bool) {
	p.debug.Store(enabled)
	p.link.SetDebug(enabled)
}

// Debug reports whether wire tracing is on.
func (p *Projector) Debug() bool {
	return p.debug.Load()
}

// SetPollingDisabled turns polling off (true) or on (false).
func (p *Projector) SetPollingDisabled(disabled bool) {
	p.pollingDisabled.Store(disabled)
}

// PollingDisabled reports whether polling is off.
func (p *Projector) PollingDisabled() bool {
	return p.pollingDisabled.Load()
}

// SetPollInterval changes the time between status cycles.
func (p *Projector) SetPollInterval(d time.Duration) {
	p.poller.SetInterval(d)
}

// PollInterval returns the time between status cycles.
func (p *Projector) PollInterval() time.Duration {
	return p.poller.Interval()
}

// --- State ---

// PowerState queues a power query and returns the last confirmed power
// state. The query result arrives later as a Power event.
func (p *Projector) PowerState() PowerState {
	p.QueryPower()
	c, _ := p.state.snapshot()
	return c.Power
}

// ConnectionError reports whether the last exchange failed.
func (p *Projector) ConnectionError() bool {
	c, _ := p.state.snapshot()
	return c.ConnectionError
}

// Confirmed returns the state last reported by the projector.
func (p *Projector) Confirmed() ConfirmedState {
	c, _ := p.state.snapshot()
	return c
}

// Pending returns the optimistic target state.
func (p *Projector) Pending() PendingState {
	_, pend := p.state.snapshot()
	return pend
}

// Stats returns link statistics and the current queue depth.
func (p *Projector) Stats() Stats {
	return Stats{LinkStats: p.link.Stats(), QueueDepth: p.queue.Len()}
}

// --- Commands ---

// PowerOn turns the projector on. Pending power moves to Warming (polling
// on) or On (polling off) only when Off was last confirmed.
func (p *Projector) PowerOn() {
	polling := !p.PollingDisabled()
	p.state.update(func(c *ConfirmedState, pend *PendingState) {
		if c.Power != PowerOff {
			return
		}
		if polling {
			pend.Power = PowerWarming
		} else {
			pend.Power = PowerOn
		}
	})
	p.push(cmdPowerOn)
	if polling {
		p.QueryPower()
	}
}

// PowerOff turns the projector off. Pending power moves to Cooling (polling
// on) or Off (polling off) only when On was last confirmed.
func (p *Projector) PowerOff() {
	polling := !p.PollingDisabled()
	p.state.update(func(c *ConfirmedState, pend *PendingState) {
		if c.Power != PowerOn {
			return
		}
		if polling {
			pend.Power = PowerCooling
		} else {
			pend.Power = PowerOff
		}
	})
	p.push(cmdPowerOff)
	if polling {
		p.QueryPower()
	}
}

// SwitchInput selects input code (11-59). Codes outside the range are
// dropped without queuing anything.
func (p *Projector) SwitchInput(code int) {
	if !ValidInput(code) {
		return
	}
	p.state.update(func(_ *ConfirmedState, pend *PendingState) {
		pend.Input = code
	})
	p.push(inputCommand(code))
}

// MuteAudio mutes audio unless it is already muted.
func (p *Projector) MuteAudio() {
	changed := false
	p.state.update(func(c *ConfirmedState, pend *PendingState) {
		if c.AudioMuted && pend.AudioMuted {
			return
		}
		pend.AudioMuted = true
		changed = true
	})
	if changed {
		p.sendAVMute()
	}
}

// UnmuteAudio unmutes audio unless it is not muted. While video is muted
// audio stays muted, but the mute state is still re-sent.
func (p *Projector) UnmuteAudio() {
	changed := false
	p.state.update(func(c *ConfirmedState, pend *PendingState) {
		if !c.AudioMuted && !pend.AudioMuted {
			return
		}
		if !pend.VideoMuted {
			pend.AudioMuted = false
		}
		changed = true
	})
	if changed {
		p.sendAVMute()
	}
}

// MuteVideo mutes video, which also mutes audio. The audio mute state in
// effect beforehand is restored by UnmuteVideo.
func (p *Projector) MuteVideo() {
	changed := false
	p.state.update(func(c *ConfirmedState, pend *PendingState) {
		if c.VideoMuted && pend.VideoMuted {
			return
		}
		if !pend.VideoMuted {
			pend.AudioRestore = pend.AudioMuted
		}
		pend.VideoMuted = true
		pend.AudioMuted = true
		changed = true
	})
	if changed {
		p.sendAVMute()
	}
}

// UnmuteVideo unmutes video and puts audio back to its pre-mute state.
func (p *Projector) UnmuteVideo() {
	changed := false
	p.state.update(func(c *ConfirmedState, pend *PendingState) {
		if !c.VideoMuted && !pend.VideoMuted {
			return
		}
		pend.AudioMuted = pend.AudioRestore
		pend.VideoMuted = false
		changed = true
	})
	if changed {
		p.sendAVMute()
	}
}

// sendAVMute queues the AVMT lines that reach the pending mute state.
// There is no single code for audio muted with video shown, so that state
// is reached by unmuting video and then muting audio.
func (p *Projector) sendAVMute() {
	_, pend := p.state.snapshot()
	switch {
	case pend.VideoMuted:
		p.push(cmdMuteBoth)
	case pend.AudioMuted:
		p.push(cmdUnmuteVideo)
		p.push(cmdMuteAudioOnly)
	default:
		p.push(cmdUnmuteBoth)
	}
	if !p.PollingDisabled() {
		p.QueryAVMute()
	}
}

// SendRaw queues an arbitrary protocol line, e.g. "%1NAME ?". The response
// goes through the normal parser.
//
// Returns:
//   - error: ErrInvalidParameters if line is not a class 1 command,
//     ErrNoAddress if no projector address is set, ErrQueueStopped after Stop
func (p *Projector) SendRaw(line string) error {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "%1") {
		return ErrInvalidParameters
	}
	if p.Address() == "" {
		return ErrNoAddress
	}
	return p.queue.Push(line)
}

// --- Queries ---

// QueryAll queues error status, power, input, AV mute and lamp queries in
// that order. The input list is not queried.
func (p *Projector) QueryAll() {
	p.QueryErrorStatus()
	p.QueryPower()
	p.QueryInput()
	p.QueryAVMute()
	p.QueryLamp()
}

// QueryPower queues a power query.
func (p *Projector) QueryPower() { p.push(cmdPowerQuery) }

// QueryInput queues an input query.
func (p *Projector) QueryInput() { p.push(cmdInputQuery) }

// QueryAVMute queues an AV mute query.
func (p *Projector) QueryAVMute() { p.push(cmdAVMuteQuery) }

// QueryErrorStatus queues an error status query.
func (p *Projector) QueryErrorStatus() { p.push(cmdErrorQuery) }

// QueryLamp queues a lamp hours query.
func (p *Projector) QueryLamp() { p.push(cmdLampQuery) }

// QueryInputList queues an input list query. The reply is not parsed.
func (p *Projector) QueryInputList() { p.push(cmdInputListQry) }

// poll runs on each poller tick.
func (p *Projector) poll() {
	if p.Address() == "" || p.PollingDisabled() {
		return
	}
	if depth := p.queue.Len(); depth >= pollBacklogWarn {
		if !p.backlogWarned.Swap(true) {
			p.logWarn("command queue backlog, polls outpacing the projector",
				"projector", p.id, "queue_depth", depth, "poll_interval", p.PollInterval().String())
		}
	} else {
		p.backlogWarned.Store(false)
	}
	p.QueryAll()
}

func (p *Projector) push(cmd string) {
	if err := p.queue.Push(cmd); err != nil {
		p.logWarn("command dropped", "projector", p.id, "command", cmd, "error", err)
	}
}

func (p *Projector) logWarn(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
