//go:build integration

package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quartzlab/emqx-bridge/internal/infrastructure/config"
)

// Integration tests for broker connectivity and reconnection behaviour.
// These tests require a running MQTT broker at 127.0.0.1:1883 that
// accepts anonymous connections.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "emqx-bridge-integration-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			MaxAttempts: 3,
			RetryDelay:  1,
			MaxDelay:    5,
		},
	}
}

// recordingSink captures connection state transitions.
type recordingSink struct {
	mu         sync.Mutex
	connects   int
	disconnect int
}

func (r *recordingSink) OnBrokerConnect() {
	r.mu.Lock()
	r.connects++
	r.mu.Unlock()
}

func (r *recordingSink) OnBrokerConnectionLost(_ error) {
	r.mu.Lock()
	r.disconnect++
	r.mu.Unlock()
}

func TestConnectAndPublish(t *testing.T) {
	sink := &recordingSink{}
	client, err := Connect(context.Background(), integrationConfig(), staticCredentials{token: "t"}, sink)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	topic := Topics{}.UserNotification("integration-test")
	if err := client.Publish(topic, []byte(`{"msg_id":"m1"}`), 1); err != nil {
		t.Errorf("Publish() error = %v", err)
	}

	// Give the async connect handler time to fire.
	time.Sleep(100 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.connects == 0 {
		t.Error("sink never observed a connect")
	}
}

func TestConnectExhaustsRetries(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.Port = 19999
	cfg.Reconnect.MaxAttempts = 2
	cfg.Reconnect.RetryDelay = 1

	start := time.Now()
	_, err := Connect(context.Background(), cfg, staticCredentials{token: "t"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}

	// Two attempts with one delay between them.
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("retry loop finished in %v, expected at least the retry delay", elapsed)
	}
}

func TestPublishAfterClose(t *testing.T) {
	client, err := Connect(context.Background(), integrationConfig(), staticCredentials{token: "t"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err = client.Publish(Topics{}.UserNotification("u"), []byte("x"), 1)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}
