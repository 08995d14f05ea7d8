package pjlink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDeadline bounds one complete command exchange: connect, greeting,
// optional authentication, command and response.
const DefaultDeadline = 4 * time.Second

// commandTerminator ends every line written to the projector.
const commandTerminator = "\r"

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DialFunc opens a network connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// SessionState is the lifecycle position of one command exchange.
type SessionState int32

// Session states.
const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionAwaitingGreeting
	SessionAuthenticating
	SessionReady
	SessionAwaitingResponse
	SessionClosed
	SessionErrored
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionAwaitingGreeting:
		return "awaiting_greeting"
	case SessionAuthenticating:
		return "authenticating"
	case SessionReady:
		return "ready"
	case SessionAwaitingResponse:
		return "awaiting_response"
	case SessionClosed:
		return "closed"
	case SessionErrored:
		return "errored"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Target identifies the projector a link talks to.
type Target struct {
	Address  string
	Port     int
	Password string
}

// LinkStats holds operational statistics for a link.
type LinkStats struct {
	CommandsSent   uint64
	CommandsFailed uint64
	Timeouts       uint64
	AuthFailures   uint64
	LastExchange   time.Time
	LastState      SessionState
}

// Sender executes one command exchange. *Link implements it.
type Sender interface {
	SendCommand(ctx context.Context, command string) error
}

// Ensure Link implements Sender.
var _ Sender = (*Link)(nil)

// LinkOptions configures a Link.
type LinkOptions struct {
	// Source is the projector ID stamped on events.
	Source string

	// Deadline bounds each exchange. Default: DefaultDeadline.
	Deadline time.Duration

	// Dial opens connections. Default: net.Dialer.DialContext.
	Dial DialFunc
}

// Link runs command exchanges against one projector. Every exchange opens a
// fresh TCP connection, reads the greeting, authenticates if challenged,
// writes the command, reads one response line and closes the connection.
//
// Thread Safety: SendCommand serialises exchanges with an internal lock, so
// at most one connection is open at any time even with concurrent callers.
type Link struct {
	lock sync.Mutex

	target   Target
	targetMu sync.RWMutex

	source   string
	deadline time.Duration
	dial     DialFunc

	state    *deviceState
	parser   *ResponseParser
	notifier *Notifier

	debug atomic.Bool

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	commandsSent   atomic.Uint64
	commandsFailed atomic.Uint64
	timeouts       atomic.Uint64
	authFailures   atomic.Uint64
	lastExchange   atomic.Int64 // Unix nanoseconds
	lastState      atomic.Int32
}

func newLink(opts LinkOptions, state *deviceState, notifier *Notifier) *Link {
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Dial == nil {
		var d net.Dialer
		opts.Dial = d.DialContext
	}
	return &Link{
		target:   Target{Port: DefaultPort},
		source:   opts.Source,
		deadline: opts.Deadline,
		dial:     opts.Dial,
		state:    state,
		parser:   newResponseParser(opts.Source, state, notifier),
		notifier: notifier,
	}
}

// SetTarget replaces the projector endpoint used by later exchanges.
func (l *Link) SetTarget(t Target) {
	l.targetMu.Lock()
	l.target = t
	l.targetMu.Unlock()
}

// Target returns the current endpoint.
func (l *Link) Target() Target {
	l.targetMu.RLock()
	defer l.targetMu.RUnlock()
	return l.target
}

// SetDebug toggles per-line wire tracing at debug level.
func (l *Link) SetDebug(enabled bool) {
	l.debug.Store(enabled)
}

// SetLogger sets the logger for this link.
func (l *Link) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

// Stats returns current operational statistics.
func (l *Link) Stats() LinkStats {
	var last time.Time
	if ns := l.lastExchange.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return LinkStats{
		CommandsSent:   l.commandsSent.Load(),
		CommandsFailed: l.commandsFailed.Load(),
		Timeouts:       l.timeouts.Load(),
		AuthFailures:   l.authFailures.Load(),
		LastExchange:   last,
		LastState:      SessionState(l.lastState.Load()),
	}
}

// SendCommand runs one complete exchange for command.
//
// With no address configured it returns nil without touching the network.
// Transport failures, deadline expiry and authentication rejection set the
// connection error flag and raise an Error(ErrorConnection) event. The first
// successful exchange after a failure clears the flag and raises one more
// Error(ErrorConnection) event with Connected set.
//
// Parameters:
//   - ctx: Parent context; the exchange deadline is derived from it
//   - command: Protocol line without terminator, e.g. "%1POWR 1"
//
// Returns:
//   - error: nil on a completed exchange, or the wrapped failure
func (l *Link) SendCommand(ctx context.Context, command string) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	target := l.Target()
	if target.Address == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.deadline)
	defer cancel()

	l.commandsSent.Add(1)
	s := &session{link: l, done: make(chan struct{})}
	err := s.run(ctx, target, command)
	s.close()

	l.lastExchange.Store(time.Now().UnixNano())
	l.finish(err)
	return err
}

// finish updates the connection flag and raises connection events.
func (l *Link) finish(err error) {
	if err == nil {
		recovered := false
		l.state.update(func(c *ConfirmedState, _ *PendingState) {
			if c.ConnectionError {
				c.ConnectionError = false
				recovered = true
			}
		})
		if recovered {
			l.logInfo("projector connection restored", "source", l.source)
			l.notifyConnection(true)
		}
		return
	}

	if errors.Is(err, context.Canceled) {
		// Shutdown; not a projector fault.
		return
	}

	l.commandsFailed.Add(1)
	switch {
	case errors.Is(err, ErrDeadlineExceeded):
		l.timeouts.Add(1)
	case errors.Is(err, ErrAuthRejected):
		l.authFailures.Add(1)
	}

	l.state.update(func(c *ConfirmedState, _ *PendingState) {
		c.ConnectionError = true
	})
	l.logError("projector exchange failed", err)
	l.notifyConnection(false)
}

func (l *Link) notifyConnection(connected bool) {
	l.notifier.Notify(Event{
		Source:    l.source,
		Type:      EventError,
		Data:      ErrorConnection,
		Time:      time.Now(),
		Connected: connected,
	})
}

func (l *Link) trace(direction, line string) {
	if !l.debug.Load() {
		return
	}
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug("pjlink "+direction, "source", l.source, "line", line)
	}
}

// logInfo logs an info message if logger is set.
func (l *Link) logInfo(msg string, keysAndValues ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (l *Link) logError(msg string, err error) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "source", l.source, "error", err)
	}
}

// session is one connection's lifecycle for exactly one command exchange.
type session struct {
	link      *Link
	conn      net.Conn
	connMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	lines     chan string
	readErr   chan error
}

func (s *session) setState(st SessionState) {
	s.link.lastState.Store(int32(st))
}

func (s *session) run(ctx context.Context, target Target, command string) error {
	s.setState(SessionConnecting)
	addr := net.JoinHostPort(target.Address, strconv.Itoa(target.Port))
	conn, err := s.link.dial(ctx, "tcp", addr)
	if err != nil {
		return s.fail(ctx, fmt.Errorf("dial %s: %w", addr, err))
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	// Deadline expiry force-closes the socket, which unblocks the reader.
	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	s.lines = make(chan string, 1)
	s.readErr = make(chan error, 1)
	go s.readLoop()

	s.setState(SessionAwaitingGreeting)
	greeting, err := s.next(ctx)
	if err != nil {
		return s.fail(ctx, fmt.Errorf("awaiting greeting: %w", err))
	}
	s.link.trace("received", greeting)

	var prefix string
	switch {
	case strings.HasPrefix(greeting, greetingAuth):
		s.setState(SessionAuthenticating)
		prefix = AuthHash(greeting[len(greetingAuth):], target.Password)
	case strings.HasPrefix(greeting, greetingNoAuth):
	default:
		s.setState(SessionErrored)
		return fmt.Errorf("%w: %q", ErrBadGreeting, greeting)
	}

	s.setState(SessionReady)
	s.link.trace("sent", command)
	if _, err := conn.Write([]byte(prefix + command + commandTerminator)); err != nil {
		return s.fail(ctx, fmt.Errorf("write: %w", err))
	}

	s.setState(SessionAwaitingResponse)
	line, err := s.next(ctx)
	if err != nil {
		return s.fail(ctx, fmt.Errorf("awaiting response: %w", err))
	}
	stop()
	s.link.trace("received", line)

	if s.link.parser.Parse(line).AuthRejected {
		s.close()
		s.setState(SessionErrored)
		return fmt.Errorf("%w for %s", ErrAuthRejected, addr)
	}

	s.setState(SessionClosed)
	return nil
}

// fail classifies an I/O error, preferring the deadline when it fired.
func (s *session) fail(ctx context.Context, err error) error {
	s.setState(SessionErrored)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrDeadlineExceeded, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", context.Canceled, err)
	default:
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
}

// next blocks for the next line, a read failure or the deadline.
func (s *session) next(ctx context.Context) (string, error) {
	select {
	case line := <-s.lines:
		return line, nil
	case err := <-s.readErr:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readLoop forwards lines until the connection closes.
func (s *session) readLoop() {
	scanner := bufio.NewScanner(s.conn)
	scanner.Split(scanLines)
	for scanner.Scan() {
		select {
		case s.lines <- scanner.Text():
		case <-s.done:
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = errors.New("connection closed by projector")
	}
	select {
	case s.readErr <- err:
	case <-s.done:
	}
}

// close shuts the connection. Safe to call more than once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.connMu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.connMu.Unlock()
	})
}

// scanLines splits on CR or LF and drops empty lines, so "\r", "\n" and
// "\r\n" terminators all work.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}
