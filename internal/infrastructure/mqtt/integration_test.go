//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"
)

// Integration tests need a broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_MessageRoundtrip(t *testing.T) {
	cfg := testConfig()

	cfg.Broker.ClientID = "pjlinkd-int-pub"
	pubClient, err := Connect(cfg, Will{})
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pubClient.Close()

	cfg.Broker.ClientID = "pjlinkd-int-sub"
	subClient, err := Connect(cfg, Will{})
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer subClient.Close()

	received := make(chan string, 1)
	var once sync.Once
	err = subClient.Subscribe("graylogic/command/pjlink/+", 1, func(topic string, p []byte) error {
		once.Do(func() { received <- topic + " " + string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	subClient.subMu.RLock()
	_, tracked := subClient.subscriptions["graylogic/command/pjlink/+"]
	subClient.subMu.RUnlock()
	if !tracked {
		t.Error("subscription not tracked")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pubClient.Publish("graylogic/command/pjlink/hall", []byte(`{"command":"power_on"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != `graylogic/command/pjlink/hall {"command":"power_on"}` {
			t.Errorf("received %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestIntegration_RetainedState(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "pjlinkd-int-retained"

	client, err := Connect(cfg, Will{Topic: "graylogic/health/pjlink-int", Payload: []byte(`{"status":"offline"}`)})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := "graylogic/state/pjlink/int-retained"
	if err := client.Publish(topic, []byte(`{"power":"on"}`), 1, true); err != nil {
		t.Fatalf("Publish(retained) error = %v", err)
	}

	received := make(chan string, 1)
	err = client.Subscribe(topic, 1, func(_ string, p []byte) error {
		select {
		case received <- string(p):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != `{"power":"on"}` {
			t.Errorf("retained payload = %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Error("retained message not delivered")
	}

	// Clear the retained message.
	_ = client.Publish(topic, nil, 1, true)
}
