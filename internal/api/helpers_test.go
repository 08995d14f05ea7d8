package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-pjlink/internal/bridges/pjlink"
	"github.com/nerrad567/gray-logic-pjlink/internal/eventlog"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters"

// mockFleet serves idle engines that are never started, so commands only
// queue.
type mockFleet struct {
	order      []string
	projectors map[string]*pjlink.Projector
	configs    map[string]pjlink.ProjectorConfig

	mu        sync.Mutex
	listeners []pjlink.Listener
}

func newMockFleet(configs ...pjlink.ProjectorConfig) *mockFleet {
	f := &mockFleet{
		projectors: make(map[string]*pjlink.Projector),
		configs:    make(map[string]pjlink.ProjectorConfig),
	}
	for _, pc := range configs {
		f.order = append(f.order, pc.ID)
		f.configs[pc.ID] = pc
		f.projectors[pc.ID] = pjlink.New(pjlink.Options{ID: pc.ID, Address: pc.Address})
	}
	return f
}

func (f *mockFleet) Summaries() []pjlink.ProjectorSummary {
	out := make([]pjlink.ProjectorSummary, 0, len(f.order))
	for _, id := range f.order {
		p := f.projectors[id]
		out = append(out, pjlink.ProjectorSummary{
			ID:              id,
			Name:            f.configs[id].Name,
			Address:         p.Address(),
			Power:           p.Confirmed().Power.String(),
			ConnectionError: p.ConnectionError(),
		})
	}
	return out
}

func (f *mockFleet) Projector(id string) (*pjlink.Projector, bool) {
	p, ok := f.projectors[id]
	return p, ok
}

func (f *mockFleet) Projectors() []*pjlink.Projector {
	out := make([]*pjlink.Projector, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.projectors[id])
	}
	return out
}

func (f *mockFleet) ProjectorConfig(id string) (pjlink.ProjectorConfig, bool) {
	pc, ok := f.configs[id]
	return pc, ok
}

func (f *mockFleet) Dispatch(projectorID, command string, params map[string]any) error {
	p, ok := f.projectors[projectorID]
	if !ok {
		return fmt.Errorf("%w: %s", pjlink.ErrUnknownProjector, projectorID)
	}
	return pjlink.Execute(p, command, params)
}

func (f *mockFleet) FleetStats() pjlink.FleetStats {
	return pjlink.FleetStats{Projectors: len(f.order)}
}

func (f *mockFleet) AddListener(l pjlink.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

func (f *mockFleet) RemoveListener(l pjlink.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.listeners {
		if existing == l {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			return
		}
	}
}

func (f *mockFleet) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *mockFleet) emit(e pjlink.Event) {
	f.mu.Lock()
	ls := append([]pjlink.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		l.OnEvent(e)
	}
}

// fakeHistory is an in-memory eventlog.Repository.
type fakeHistory struct {
	entries []eventlog.Entry
	err     error

	gotSince time.Time
	gotLimit int
}

func (h *fakeHistory) Record(_ context.Context, e *eventlog.Entry) error {
	h.entries = append(h.entries, *e)
	return h.err
}

func (h *fakeHistory) List(_ context.Context, projectorID string, since time.Time, limit int) ([]eventlog.Entry, error) {
	h.gotSince, h.gotLimit = since, limit
	if h.err != nil {
		return nil, h.err
	}
	out := []eventlog.Entry{}
	for _, e := range h.entries {
		if e.ProjectorID == projectorID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (h *fakeHistory) Prune(context.Context, time.Time) (int64, error) {
	return 0, h.err
}

var errCheckFailed = errors.New("check failed")

type testServerOptions struct {
	secret  string
	history eventlog.Repository
	checks  map[string]HealthCheck
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func newTestServer(t *testing.T, opts testServerOptions) (*Server, *mockFleet) {
	t.Helper()

	fleet := newMockFleet(
		pjlink.ProjectorConfig{ID: "hall", Name: "Main Hall", Address: "10.0.0.20"},
		pjlink.ProjectorConfig{ID: "lobby", Name: "Lobby"},
	)
	deps := Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: opts.secret, Issuer: "pjlinkd"}},
		Logger:   testLogger(),
		Fleet:    fleet,
		History:  opts.history,
		Checks:   opts.checks,
		Version:  "test",
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, fleet
}

func doRequest(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
