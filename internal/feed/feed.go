package feed

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/trackside-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/trackside-core/internal/layout"
)

// Bridge status values.
const (
	StatusOnline   = "online"
	StatusOffline  = "offline"
	StatusShutdown = "shutdown"
)

// Subscriber is the part of the MQTT client the feed uses.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// Sink receives decoded feed events. *automation.Engine implements it.
type Sink interface {
	OnClockState(hour, minute int, running bool) error
	OnEntityUpdate(kind layout.Kind, id string, attrs map[string]any) error
	OnShutdownSignal()
	OnTransportClosed()
	ResetConnection()
}

// Logger defines the logging interface used by the feed.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ClockPayload is the body of the clock topic. Running defaults to true.
type ClockPayload struct {
	Hour    int   `json:"hour"`
	Minute  int   `json:"minute"`
	Running *bool `json:"running,omitempty"`
}

// Feed subscribes to the bridge topics and forwards them to a Sink.
type Feed struct {
	sub    Subscriber
	sink   Sink
	topics mqtt.Topics
	qos    byte
	logger Logger

	mu         sync.Mutex
	lastStatus mqtt.StatusPayload
	bridgeDown bool
	brokerLost bool
	subscribed []string
}

// New creates a feed. Call Start to subscribe.
func New(sub Subscriber, sink Sink, topics mqtt.Topics, qos byte) *Feed {
	return &Feed{
		sub:    sub,
		sink:   sink,
		topics: topics,
		qos:    qos,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the feed.
func (f *Feed) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	f.logger = logger
}

// Start installs the broker connection callbacks and subscribes to the
// clock, entity state and bridge status topics.
func (f *Feed) Start() error {
	f.sub.SetOnConnect(f.handleBrokerConnect)
	f.sub.SetOnDisconnect(f.handleBrokerLost)

	routes := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{f.topics.BridgeStatus(), f.handleBridgeStatus},
		{f.topics.Clock(), f.handleClock},
		{f.topics.AllEntityStates(), f.handleState},
	}
	for _, r := range routes {
		if err := f.sub.Subscribe(r.topic, f.qos, r.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", r.topic, err)
		}
		f.mu.Lock()
		f.subscribed = append(f.subscribed, r.topic)
		f.mu.Unlock()
	}

	f.logger.Info("state feed subscribed", "prefix", f.topics.Prefix())
	return nil
}

// Stop unsubscribes from every feed topic.
func (f *Feed) Stop() error {
	f.mu.Lock()
	topics := f.subscribed
	f.subscribed = nil
	f.mu.Unlock()

	var firstErr error
	for _, topic := range topics {
		if err := f.sub.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Feed) handleClock(_ string, payload []byte) error {
	var clock ClockPayload
	if err := json.Unmarshal(payload, &clock); err != nil {
		return fmt.Errorf("%w: clock: %w", ErrBadPayload, err)
	}
	running := true
	if clock.Running != nil {
		running = *clock.Running
	}
	return f.sink.OnClockState(clock.Hour, clock.Minute, running)
}

func (f *Feed) handleState(topic string, payload []byte) error {
	code, id, ok := f.topics.ParseEntityState(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	kind, err := layout.ParseKind(code)
	if err != nil {
		return err
	}

	var attrs map[string]any
	if err := json.Unmarshal(payload, &attrs); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBadPayload, topic, err)
	}
	if attrs == nil {
		return fmt.Errorf("%w: %s: expected a JSON object", ErrBadPayload, topic)
	}
	return f.sink.OnEntityUpdate(kind, id, attrs)
}

// handleBridgeStatus maps bridge lifecycle notices onto the connection
// monitor. Repeats of the last notice, such as a retained message
// redelivered after resubscribing, are ignored.
func (f *Feed) handleBridgeStatus(_ string, payload []byte) error {
	var status mqtt.StatusPayload
	if err := json.Unmarshal(payload, &status); err != nil {
		return fmt.Errorf("%w: bridge status: %w", ErrBadPayload, err)
	}

	f.mu.Lock()
	repeat := status.Status == f.lastStatus.Status && status.Reason == f.lastStatus.Reason
	f.lastStatus = status
	f.mu.Unlock()
	if repeat {
		return nil
	}

	switch status.Status {
	case StatusOnline:
		f.setBridgeDown(false)
		f.logger.Info("layout bridge online")
		f.sink.ResetConnection()
	case StatusShutdown:
		f.logger.Info("layout bridge announced shutdown", "reason", status.Reason)
		f.sink.OnShutdownSignal()
	case StatusOffline:
		f.setBridgeDown(true)
		if status.Reason == mqtt.ReasonGracefulShutdown {
			f.sink.OnShutdownSignal()
		}
		f.logger.Warn("layout bridge offline", "reason", status.Reason)
		f.sink.OnTransportClosed()
	default:
		return fmt.Errorf("%w: unknown bridge status %q", ErrBadPayload, status.Status)
	}
	return nil
}

func (f *Feed) setBridgeDown(down bool) {
	f.mu.Lock()
	f.bridgeDown = down
	f.mu.Unlock()
}

// handleBrokerLost treats loss of the broker as loss of the feed.
func (f *Feed) handleBrokerLost(err error) {
	f.mu.Lock()
	f.brokerLost = true
	f.mu.Unlock()

	f.logger.Warn("state feed lost with broker connection", "error", err)
	f.sink.OnTransportClosed()
}

// handleBrokerConnect starts a new session after a reconnect, unless the
// bridge itself is known to be down.
func (f *Feed) handleBrokerConnect() {
	f.mu.Lock()
	reconnect := f.brokerLost
	down := f.bridgeDown
	f.brokerLost = false
	f.mu.Unlock()

	if !reconnect || down {
		return
	}
	f.logger.Info("state feed restored with broker connection")
	f.sink.ResetConnection()
}
