package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/trackside-core/internal/infrastructure/config"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records calls instead of talking to a broker.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	subscribeErr error
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token {
	return fakeToken{}
}
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnected = true
	f.mu.Unlock()
}
func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.mu.Lock()
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: b})
	f.mu.Unlock()
	return fakeToken{}
}
func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return fakeToken{err: f.subscribeErr}
	}
	f.handlers[topic] = cb
	return fakeToken{}
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return fakeToken{}
}
func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	f.mu.Unlock()
	return fakeToken{}
}
func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakePaho) deliver(filter, topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[filter]
	f.mu.Unlock()
	if h != nil {
		h(f, fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePaho) publishedTo(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Info(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "trackside-test",
		},
		QoS:         1,
		TopicPrefix: "trackside",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// newTestClient returns a connected client backed by a fakePaho.
func newTestClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := newClient(testConfig())
	c.client = fake
	c.setConnected(true)
	return c, fake
}

// ─── Lifecycle ──────────────────────────────────────────────────────

func TestClose_PublishesGracefulStatus(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if !fake.disconnected {
		t.Error("paho Disconnect not called")
	}

	msgs := fake.publishedTo("trackside/core/status")
	if len(msgs) != 1 {
		t.Fatalf("status messages = %d, want 1", len(msgs))
	}
	if !msgs[0].retained {
		t.Error("status should be retained")
	}
	var status StatusPayload
	if err := json.Unmarshal(msgs[0].payload, &status); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if status.Status != "offline" || status.Reason != ReasonGracefulShutdown {
		t.Errorf("status = %+v, want offline/graceful_shutdown", status)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	if (&Client{}).IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheck(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}

	fake.mu.Lock()
	fake.connected = false
	fake.mu.Unlock()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHandleConnect_RestoresSubscriptionsAndNotifies(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.Subscribe("trackside/clock", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Simulate the broker dropping the session.
	fake.mu.Lock()
	fake.handlers = make(map[string]pahomqtt.MessageHandler)
	fake.mu.Unlock()

	reconnected := make(chan struct{}, 1)
	c.SetOnConnect(func() { reconnected <- struct{}{} })
	c.handleConnect()

	select {
	case <-reconnected:
	default:
		t.Error("OnConnect callback not invoked")
	}

	fake.mu.Lock()
	_, restored := fake.handlers["trackside/clock"]
	fake.mu.Unlock()
	if !restored {
		t.Error("subscription not restored after reconnect")
	}

	online := fake.publishedTo("trackside/core/status")
	if len(online) != 1 || !json.Valid(online[0].payload) {
		t.Fatalf("online status not published: %+v", online)
	}
}

func TestHandleDisconnect(t *testing.T) {
	c, _ := newTestClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	lost := errors.New("EOF")
	c.handleDisconnect(lost)

	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	if !errors.Is(got, lost) {
		t.Errorf("OnDisconnect err = %v, want %v", got, lost)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one connection-lost entry", logger.warns)
	}
}

// ─── Publish ────────────────────────────────────────────────────────

func TestPublish_Validation(t *testing.T) {
	c, _ := newTestClient(t)

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"wildcard topic", "trackside/state/+/x", 1, nil, ErrInvalidTopic},
		{"invalid qos", "t", 3, nil, ErrInvalidQoS},
		{"oversized payload", "t", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"nil payload", "t", 1, nil, nil},
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

func TestPublish_Disconnected(t *testing.T) {
	c, _ := newTestClient(t)
	c.setConnected(false)

	if err := c.Publish("t", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishJSON(t *testing.T) {
	c, fake := newTestClient(t)
	topic := c.Topics().Command("sw", "sw12")

	if err := c.PublishJSON(topic, map[string]string{"command": "turnout"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	msgs := fake.publishedTo("trackside/command/sw/sw12")
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if string(msgs[0].payload) != `{"command":"turnout"}` {
		t.Errorf("payload = %s", msgs[0].payload)
	}
	if msgs[0].qos != 1 || msgs[0].retained {
		t.Errorf("qos=%d retained=%v, want 1/false", msgs[0].qos, msgs[0].retained)
	}

	if err := c.PublishJSON(topic, make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrPublishFailed", err)
	}
}

// ─── Subscribe ──────────────────────────────────────────────────────

func TestSubscribe_Validation(t *testing.T) {
	c, _ := newTestClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}

	c.setConnected(false)
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		filter string
		valid  bool
	}{
		{"trackside/state/+/+", true},
		{"trackside/#", true},
		{"#", true},
		{"trackside/clock", true},
		{"", false},
		{"trackside/#/state", false},
		{"trackside/st#", false},
		{"trackside/state+/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			err := validateFilter(tt.filter)
			if tt.valid && err != nil {
				t.Errorf("validateFilter(%q) error = %v", tt.filter, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidTopic) {
				t.Errorf("validateFilter(%q) error = %v, want ErrInvalidTopic", tt.filter, err)
			}
		})
	}
}

func TestSubscribe_TracksAndUnsubscribes(t *testing.T) {
	c, _ := newTestClient(t)
	noop := func(string, []byte) error { return nil }

	for _, topic := range []string{"a", "b", "c"} {
		if err := c.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if c.SubscriptionCount() != 3 {
		t.Errorf("SubscriptionCount() = %d, want 3", c.SubscriptionCount())
	}

	if err := c.Unsubscribe("b"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription("b") {
		t.Error("HasSubscription(b) = true after Unsubscribe")
	}
	if c.SubscriptionCount() != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", c.SubscriptionCount())
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestSubscribe_BrokerRejectsUntracks(t *testing.T) {
	c, fake := newTestClient(t)
	fake.subscribeErr = errors.New("not authorised")

	err := c.Subscribe("t", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("t") {
		t.Error("failed subscription should not be tracked")
	}
}

func TestWrapHandler_RecoversAndLogs(t *testing.T) {
	c, fake := newTestClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	if err := c.Subscribe("panic", 1, func(string, []byte) error { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe("fail", 1, func(string, []byte) error { return fmt.Errorf("bad payload") }); err != nil {
		t.Fatal(err)
	}

	fake.deliver("panic", "panic", nil)
	fake.deliver("fail", "fail", nil)

	if len(logger.errs) != 1 {
		t.Errorf("errors logged = %v, want one panic entry", logger.errs)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns logged = %v, want one handler error", logger.warns)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("rail"), "core-1")

	if !opts.WillEnabled {
		t.Fatal("will not enabled")
	}
	if opts.WillTopic != "rail/core/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	var status StatusPayload
	if err := json.Unmarshal(opts.WillPayload, &status); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if status.Reason != ReasonUnexpectedDisconnect || status.ClientID != "core-1" {
		t.Errorf("will = %+v", status)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d", opts.WillRetained, opts.WillQos)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "rail"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.Username != "rail" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("auto-reconnect and clean session expected")
	}
}
