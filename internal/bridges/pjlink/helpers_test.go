package pjlink

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// eventRecorder is a Listener that keeps every event it sees.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) ofType(t EventType) []Event {
	var out []Event
	for _, e := range r.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// connectionEvents returns the Connected flag of each ErrorConnection event.
func (r *eventRecorder) connectionEvents() []bool {
	var out []bool
	for _, e := range r.ofType(EventError) {
		if e.Data == ErrorConnection {
			out = append(out, e.Connected)
		}
	}
	return out
}

// fakeProjector is a TCP server that speaks enough PJLink for tests.
//
// Each accepted connection gets the greeting, then the reply function is
// called with the received line and its result written back. A reply of
// "" leaves the connection silent.
type fakeProjector struct {
	t        *testing.T
	ln       net.Listener
	greeting string
	reply    func(line string) string

	mu       sync.Mutex
	received []string

	wg sync.WaitGroup
}

func newFakeProjector(t *testing.T, greeting string, reply func(string) string) *fakeProjector {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeProjector{t: t, ln: ln, greeting: greeting, reply: reply}
	f.wg.Add(1)
	go f.serve()
	t.Cleanup(f.close)
	return f
}

func (f *fakeProjector) serve() {
	defer f.wg.Done()
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.wg.Add(1)
		go f.handle(conn)
	}
}

func (f *fakeProjector) handle(conn net.Conn) {
	defer f.wg.Done()
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(f.greeting + "\r")); err != nil {
		return
	}
	line, err := bufio.NewReader(conn).ReadString('\r')
	if err != nil {
		return
	}
	line = strings.TrimSuffix(line, "\r")

	f.mu.Lock()
	f.received = append(f.received, line)
	f.mu.Unlock()

	resp := f.reply(line)
	if resp == "" {
		// Hold the connection open until the client gives up.
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
		return
	}
	_, _ = conn.Write([]byte(resp + "\r"))
}

func (f *fakeProjector) close() {
	f.ln.Close()
	f.wg.Wait()
}

func (f *fakeProjector) host() string {
	return f.ln.Addr().(*net.TCPAddr).IP.String()
}

func (f *fakeProjector) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeProjector) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.received))
	copy(out, f.received)
	return out
}

// newTestLink builds a Link with its own state and recorder.
func newTestLink(t *testing.T, target Target, deadline time.Duration) (*Link, *deviceState, *eventRecorder) {
	t.Helper()
	state := newDeviceState()
	notifier := NewNotifier()
	rec := &eventRecorder{}
	notifier.Add(rec)
	link := newLink(LinkOptions{Source: "test", Deadline: deadline}, state, notifier)
	link.SetTarget(target)
	return link, state, rec
}

// refusedAddress returns a loopback port with nothing listening.
func refusedAddress(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()
	return addr.IP.String(), addr.Port
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// recordingSender is a Sender that logs commands and tracks overlap.
type recordingSender struct {
	mu       sync.Mutex
	commands []string
	inFlight int
	overlap  bool
	delay    time.Duration
}

func (s *recordingSender) SendCommand(_ context.Context, command string) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > 1 {
		s.overlap = true
	}
	s.commands = append(s.commands, command)
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}
