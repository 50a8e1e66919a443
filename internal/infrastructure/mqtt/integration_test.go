//go:build integration

package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/trackside-core/internal/infrastructure/config"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:         1,
		TopicPrefix: "trackside-it",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(integrationConfig("trackside-it-connect"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig("trackside-it-refused")
	cfg.Broker.Port = 19998

	if _, err := Connect(cfg); err == nil {
		t.Fatal("Connect() should fail for refused connection")
	}
}

func TestIntegration_EntityStateRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("trackside-it-pub"))
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("trackside-it-sub"))
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	topics := sub.Topics()
	received := make(chan string, 1)
	var once sync.Once

	err = sub.Subscribe(topics.AllEntityStates(), 1, func(topic string, payload []byte) error {
		kind, id, ok := topics.ParseEntityState(topic)
		if ok {
			once.Do(func() { received <- kind + "/" + id + "=" + string(payload) })
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON(topics.EntityState("fb", "fb_1"), map[string]bool{"state": true}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != `fb/fb_1={"state":true}` {
			t.Errorf("received %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	core, err := Connect(integrationConfig("trackside-it-core"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer core.Close()

	time.Sleep(200 * time.Millisecond)

	watcher, err := Connect(integrationConfig("trackside-it-watcher"))
	if err != nil {
		t.Fatalf("Connect() watcher error = %v", err)
	}
	defer watcher.Close()

	statuses := make(chan StatusPayload, 4)
	err = watcher.Subscribe(watcher.Topics().CoreStatus(), 1, func(_ string, payload []byte) error {
		var s StatusPayload
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		statuses <- s
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case s := <-statuses:
		if s.Status != "online" && s.Status != "offline" {
			t.Errorf("unexpected status %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Error("retained status not delivered")
	}
}
