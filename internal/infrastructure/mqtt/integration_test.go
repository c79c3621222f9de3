//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
)

// Integration tests need a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

func TestIntegration_ConnectClose(t *testing.T) {
	client, err := Connect(integrationConfig("fcserver-int-connect"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig("fcserver-int-refused")
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); err == nil {
		t.Fatal("Connect() expected error for unreachable broker")
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("fcserver-int-pub"))
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("fcserver-int-sub"))
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	received := make(chan string, 1)
	var once sync.Once
	err = sub.Subscribe(Topics{}.DeviceEvents(), 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	want := `{"event":"attached"}`
	if err := pub.Publish(Topics{}.DeviceEvents(), []byte(want), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != want {
			t.Errorf("received %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestIntegration_ControlBridge(t *testing.T) {
	server, err := Connect(integrationConfig("fcserver-int-bridge"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer server.Close()

	remote, err := Connect(integrationConfig("fcserver-int-remote"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer remote.Close()

	bridge := NewControlBridge(server, echoHandler{}, 1)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer bridge.Stop()

	replies := make(chan string, 1)
	if err := remote.Subscribe(Topics{}.ControlReply(), 1, func(_ string, p []byte) error {
		replies <- string(p)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := remote.Publish(Topics{}.Control(), []byte(`{"type":"server_info"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-replies:
		if got != `reply {"type":"server_info"}` {
			t.Errorf("reply = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for reply")
	}
}
