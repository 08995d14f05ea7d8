package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-pjlink/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for unit tests. Nothing
// here dials the broker; see integration_test.go for that.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "pjlinkd-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// offlineClient builds a Client that was never connected.
func offlineClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "pjlinkd-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.CleanSession || !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("expected clean session with auto reconnect and connect retry")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:8883", opts.Servers)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("TLSConfig = %+v, want TLS 1.2 minimum", opts.TLSConfig)
	}
}

func TestBuildClientOptions_NoAuth(t *testing.T) {
	opts := buildClientOptions(testConfig())
	if opts.Username != "" || opts.Password != "" {
		t.Errorf("credentials set without auth config: %q/%q", opts.Username, opts.Password)
	}
}

func TestConfigureWill(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureWill(opts, Will{})
	if opts.WillEnabled {
		t.Error("Will enabled without a topic")
	}

	payload := []byte(`{"status":"offline"}`)
	configureWill(opts, Will{Topic: "graylogic/health/pjlink", Payload: payload})
	if !opts.WillEnabled {
		t.Fatal("Will not enabled")
	}
	if opts.WillTopic != "graylogic/health/pjlink" || string(opts.WillPayload) != string(payload) {
		t.Errorf("Will = %s %s", opts.WillTopic, opts.WillPayload)
	}
	if opts.WillQos != 1 || !opts.WillRetained {
		t.Errorf("Will QoS/retained = %d/%v, want 1/true", opts.WillQos, opts.WillRetained)
	}
}

func TestPublishValidation(t *testing.T) {
	c := offlineClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "graylogic/state/pjlink/hall", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "graylogic/state/pjlink/hall", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "graylogic/state/pjlink/hall", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := offlineClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("graylogic/command/pjlink/+", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("graylogic/command/pjlink/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil) error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("graylogic/command/pjlink/+", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(offline) error = %v, want ErrNotConnected", err)
	}
	if len(c.subscriptions) != 0 {
		t.Error("failed subscriptions must not be tracked")
	}
}

func TestHealthCheck(t *testing.T) {
	c := offlineClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := offlineClient()
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestDispatch(t *testing.T) {
	c := offlineClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got string
	c.dispatch(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	}, "graylogic/command/pjlink/hall", []byte("{}"))
	if got != "graylogic/command/pjlink/hall={}" {
		t.Errorf("handler saw %q", got)
	}

	c.dispatch(func(string, []byte) error { return errors.New("bad command") }, "t", nil)
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 || logger.warns[0] != "MQTT handler returned error" {
		t.Errorf("warns = %v", logger.warns)
	}
	if len(logger.errors) != 1 || logger.errors[0] != "MQTT handler panic recovered" {
		t.Errorf("errors = %v", logger.errors)
	}
}

func TestConnectionCallbacks(t *testing.T) {
	c := offlineClient()

	disconnected := make(chan error, 1)
	c.SetOnDisconnect(func(err error) { disconnected <- err })

	c.connected = true
	wantErr := errors.New("connection reset")
	c.handleDisconnect(wantErr)

	select {
	case err := <-disconnected:
		if !errors.Is(err, wantErr) {
			t.Errorf("callback error = %v, want %v", err, wantErr)
		}
	default:
		t.Fatal("disconnect callback not called")
	}
	if c.connected {
		t.Error("connected still set after disconnect")
	}

	c.SetOnDisconnect(nil)
	c.handleDisconnect(wantErr)

	reconnected := false
	c.SetOnConnect(func() { reconnected = true })
	c.handleConnect()
	if !reconnected || !c.connected {
		t.Error("connect callback not called or state not restored")
	}
}
