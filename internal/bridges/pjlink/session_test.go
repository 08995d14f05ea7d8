package pjlink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func echoPower(line string) string {
	switch line {
	case "%1POWR ?":
		return "%1POWR=1"
	default:
		return "%1POWR=OK"
	}
}

func TestLinkSendCommandNoAuth(t *testing.T) {
	fake := newFakeProjector(t, "PJLINK 0", echoPower)
	link, state, rec := newTestLink(t, Target{Address: fake.host(), Port: fake.port()}, time.Second)

	if err := link.SendCommand(context.Background(), "%1POWR ?"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	if got := fake.lines(); len(got) != 1 || got[0] != "%1POWR ?" {
		t.Errorf("projector received %q, want [%%1POWR ?]", got)
	}
	c, _ := state.snapshot()
	if c.Power != PowerOn {
		t.Errorf("confirmed power = %s, want on", c.Power)
	}
	if ev := rec.ofType(EventPower); len(ev) != 1 || !ev[0].Connected {
		t.Errorf("power events = %+v", ev)
	}

	stats := link.Stats()
	if stats.CommandsSent != 1 || stats.CommandsFailed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastState != SessionClosed {
		t.Errorf("LastState = %s, want closed", stats.LastState)
	}
	if stats.LastExchange.IsZero() {
		t.Error("LastExchange not recorded")
	}
}

func TestLinkSendCommandAuth(t *testing.T) {
	fake := newFakeProjector(t, "PJLINK 1 abcdef0123456789", echoPower)
	link, _, _ := newTestLink(t, Target{Address: fake.host(), Port: fake.port(), Password: "secret"}, time.Second)

	if err := link.SendCommand(context.Background(), "%1POWR ?"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	got := fake.lines()
	if len(got) != 1 {
		t.Fatalf("projector received %d lines, want 1", len(got))
	}
	want := "e893a412f0289a9d7f62e0833669f372%1POWR ?"
	if got[0] != want {
		t.Errorf("line = %q, want %q", got[0], want)
	}
}

func TestLinkNoAddress(t *testing.T) {
	link, _, rec := newTestLink(t, Target{Port: DefaultPort}, time.Second)

	if err := link.SendCommand(context.Background(), "%1POWR ?"); err != nil {
		t.Errorf("SendCommand() error = %v, want nil", err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("got %d events, want 0", n)
	}
	if s := link.Stats(); s.CommandsSent != 0 {
		t.Errorf("CommandsSent = %d, want 0", s.CommandsSent)
	}
}

func TestLinkFailures(t *testing.T) {
	refusedHost, refusedPort := refusedAddress(t)

	tests := []struct {
		name     string
		greeting string
		reply    func(string) string
		refused  bool
		wantErr  error
		check    func(t *testing.T, s LinkStats)
	}{
		{
			name:     "deadline",
			greeting: "PJLINK 0",
			reply:    func(string) string { return "" },
			wantErr:  ErrDeadlineExceeded,
			check: func(t *testing.T, s LinkStats) {
				if s.Timeouts != 1 {
					t.Errorf("Timeouts = %d, want 1", s.Timeouts)
				}
			},
		},
		{
			name:    "connection refused",
			refused: true,
			wantErr: ErrConnectionFailed,
		},
		{
			name:     "auth rejected",
			greeting: "PJLINK 1 00000000",
			reply:    func(string) string { return "PJLINK ERRA" },
			wantErr:  ErrAuthRejected,
			check: func(t *testing.T, s LinkStats) {
				if s.AuthFailures != 1 {
					t.Errorf("AuthFailures = %d, want 1", s.AuthFailures)
				}
			},
		},
		{
			name:     "bad greeting",
			greeting: "HELLO",
			reply:    echoPower,
			wantErr:  ErrBadGreeting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Target{Address: refusedHost, Port: refusedPort, Password: "pw"}
			if !tt.refused {
				fake := newFakeProjector(t, tt.greeting, tt.reply)
				target = Target{Address: fake.host(), Port: fake.port(), Password: "pw"}
			}
			link, state, rec := newTestLink(t, target, 150*time.Millisecond)

			err := link.SendCommand(context.Background(), "%1POWR ?")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SendCommand() error = %v, want %v", err, tt.wantErr)
			}

			c, _ := state.snapshot()
			if !c.ConnectionError {
				t.Error("ConnectionError = false after failure")
			}
			if got := rec.connectionEvents(); len(got) != 1 || got[0] {
				t.Errorf("connection events = %v, want [false]", got)
			}
			s := link.Stats()
			if s.CommandsFailed != 1 {
				t.Errorf("CommandsFailed = %d, want 1", s.CommandsFailed)
			}
			if s.LastState != SessionErrored {
				t.Errorf("LastState = %s, want errored", s.LastState)
			}
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestLinkRecoveryNotifiedOnce(t *testing.T) {
	refusedHost, refusedPort := refusedAddress(t)
	link, state, rec := newTestLink(t, Target{Address: refusedHost, Port: refusedPort}, time.Second)
	ctx := context.Background()

	for range 2 {
		if err := link.SendCommand(ctx, "%1POWR ?"); err == nil {
			t.Fatal("SendCommand() against refused port succeeded")
		}
	}

	fake := newFakeProjector(t, "PJLINK 0", echoPower)
	link.SetTarget(Target{Address: fake.host(), Port: fake.port()})
	for range 2 {
		if err := link.SendCommand(ctx, "%1POWR ?"); err != nil {
			t.Fatalf("SendCommand() error = %v", err)
		}
	}

	got := rec.connectionEvents()
	want := []bool{false, false, true}
	if len(got) != len(want) {
		t.Fatalf("connection events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("connection event %d Connected = %v, want %v", i, got[i], want[i])
		}
	}
	if c, _ := state.snapshot(); c.ConnectionError {
		t.Error("ConnectionError still set after recovery")
	}
}

func TestLinkRecoveryEventOrder(t *testing.T) {
	refusedHost, refusedPort := refusedAddress(t)
	link, _, rec := newTestLink(t, Target{Address: refusedHost, Port: refusedPort}, time.Second)
	ctx := context.Background()

	if err := link.SendCommand(ctx, "%1POWR ?"); err == nil {
		t.Fatal("SendCommand() against refused port succeeded")
	}

	fake := newFakeProjector(t, "PJLINK 0", echoPower)
	link.SetTarget(Target{Address: fake.host(), Port: fake.port()})
	for range 2 {
		if err := link.SendCommand(ctx, "%1POWR ?"); err != nil {
			t.Fatalf("SendCommand() error = %v", err)
		}
	}

	var got []string
	for _, e := range rec.all() {
		got = append(got, fmt.Sprintf("%s:%v", e.Type, e.Connected))
	}
	want := []string{"error:false", "power:false", "error:true", "power:true"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestLinkCancelledNotFlagged(t *testing.T) {
	fake := newFakeProjector(t, "PJLINK 0", func(string) string { return "" })
	link, state, rec := newTestLink(t, Target{Address: fake.host(), Port: fake.port()}, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := link.SendCommand(ctx, "%1POWR ?")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("SendCommand() error = %v, want context.Canceled", err)
	}
	if c, _ := state.snapshot(); c.ConnectionError {
		t.Error("ConnectionError set on cancellation")
	}
	if got := rec.connectionEvents(); len(got) != 0 {
		t.Errorf("connection events = %v, want none", got)
	}
}

func TestLinkConcurrentCallersSerialised(t *testing.T) {
	fake := newFakeProjector(t, "PJLINK 0", echoPower)
	link, _, _ := newTestLink(t, Target{Address: fake.host(), Port: fake.port()}, 2*time.Second)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := link.SendCommand(context.Background(), "%1POWR ?"); err != nil {
				t.Errorf("SendCommand() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(fake.lines()); n != 5 {
		t.Errorf("projector received %d lines, want 5", n)
	}
	if s := link.Stats(); s.CommandsSent != 5 {
		t.Errorf("CommandsSent = %d, want 5", s.CommandsSent)
	}
}

type traceLogger struct {
	mu    sync.Mutex
	debug []string
}

func (l *traceLogger) Debug(msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == "line" {
			l.debug = append(l.debug, msg+" "+kv[i+1].(string))
		}
	}
}
func (l *traceLogger) Info(string, ...any)  {}
func (l *traceLogger) Warn(string, ...any)  {}
func (l *traceLogger) Error(string, ...any) {}

func TestLinkDebugTrace(t *testing.T) {
	fake := newFakeProjector(t, "PJLINK 0", echoPower)
	link, _, _ := newTestLink(t, Target{Address: fake.host(), Port: fake.port()}, time.Second)
	logger := &traceLogger{}
	link.SetLogger(logger)

	_ = link.SendCommand(context.Background(), "%1POWR ?")
	if len(logger.debug) != 0 {
		t.Fatalf("traced %d lines with debug off", len(logger.debug))
	}

	link.SetDebug(true)
	_ = link.SendCommand(context.Background(), "%1POWR ?")
	want := []string{"pjlink received PJLINK 0", "pjlink sent %1POWR ?", "pjlink received %1POWR=1"}
	if strings.Join(logger.debug, "|") != strings.Join(want, "|") {
		t.Errorf("trace = %q, want %q", logger.debug, want)
	}
}

func TestScanLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"cr", "PJLINK 0\r%1POWR=1\r", []string{"PJLINK 0", "%1POWR=1"}},
		{"lf", "PJLINK 0\n%1POWR=1\n", []string{"PJLINK 0", "%1POWR=1"}},
		{"crlf", "PJLINK 0\r\n%1POWR=1\r\n", []string{"PJLINK 0", "%1POWR=1"}},
		{"unterminated tail", "PJLINK 0\r%1POWR=1", []string{"PJLINK 0", "%1POWR=1"}},
		{"blank lines", "\r\r\nPJLINK 0\r", []string{"PJLINK 0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			data := []byte(tt.input)
			for len(data) > 0 {
				adv, tok, err := scanLines(data, true)
				if err != nil {
					t.Fatalf("scanLines error = %v", err)
				}
				if tok != nil {
					got = append(got, string(tok))
				}
				if adv == 0 {
					break
				}
				data = data[adv:]
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionStateString(t *testing.T) {
	if SessionAwaitingResponse.String() != "awaiting_response" {
		t.Errorf("String() = %q", SessionAwaitingResponse.String())
	}
	if !strings.HasPrefix(SessionState(99).String(), "unknown") {
		t.Errorf("String() = %q for unknown state", SessionState(99).String())
	}
}
