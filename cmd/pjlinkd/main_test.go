package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/mqtt"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("PJLINKD_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want config load failure", err)
	}
}

func TestRun_PJLinkDisabled(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.yaml", `
site:
  id: test-site
database:
  path: "`+filepath.Join(dir, "test.db")+`"
protocols:
  pjlink:
    enabled: false
    config_file: "`+filepath.Join(dir, "projectors.yaml")+`"
logging:
  level: error
`)
	t.Setenv("PJLINKD_CONFIG", configPath)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "nothing to run") {
		t.Fatalf("run() error = %v, want disabled error", err)
	}
}

func TestRun_MissingBridgeConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.yaml", `
site:
  id: test-site
database:
  path: "`+filepath.Join(dir, "test.db")+`"
protocols:
  pjlink:
    enabled: true
    config_file: "`+filepath.Join(dir, "missing.yaml")+`"
logging:
  level: error
`)
	t.Setenv("PJLINKD_CONFIG", configPath)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "loading PJLink bridge config") {
		t.Fatalf("run() error = %v, want bridge config failure", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "test.db")); !os.IsNotExist(statErr) {
		t.Error("database created before the bridge config was validated")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("PJLINKD_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("PJLINKD_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

// fakeBroker records adapter traffic.
type fakeBroker struct {
	mu        sync.Mutex
	published []string
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

func (f *fakeBroker) Publish(topic string, _ []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, topic)
	return nil
}

func (f *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func TestMQTTBridgeAdapter_BeforeConnect(t *testing.T) {
	a := &mqttBridgeAdapter{}

	if err := a.Publish("t", nil, 1, false); !errors.Is(err, errMQTTNotReady) {
		t.Errorf("Publish() error = %v, want errMQTTNotReady", err)
	}
	if err := a.Subscribe("t", 1, func(string, []byte) {}); !errors.Is(err, errMQTTNotReady) {
		t.Errorf("Subscribe() error = %v, want errMQTTNotReady", err)
	}
	if a.IsConnected() {
		t.Error("IsConnected() = true without a client")
	}
}

func TestMQTTBridgeAdapter_Forwards(t *testing.T) {
	broker := &fakeBroker{connected: true}
	a := &mqttBridgeAdapter{}
	a.setClient(broker)

	if err := a.Publish("graylogic/state/pjlink/hall", []byte("{}"), 1, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(broker.published) != 1 || broker.published[0] != "graylogic/state/pjlink/hall" {
		t.Errorf("published = %v", broker.published)
	}

	var got string
	if err := a.Subscribe("graylogic/command/pjlink/+", 1, func(topic string, _ []byte) { got = topic }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	handler := broker.handlers["graylogic/command/pjlink/+"]
	if handler == nil {
		t.Fatal("handler not registered")
	}
	if err := handler("graylogic/command/pjlink/hall", nil); err != nil {
		t.Errorf("wrapped handler error = %v", err)
	}
	if got != "graylogic/command/pjlink/hall" {
		t.Errorf("handler topic = %q", got)
	}

	if !a.IsConnected() {
		t.Error("IsConnected() = false")
	}
}
