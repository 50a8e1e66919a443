package connection

import (
	"runtime/debug"
	"sync"

	"github.com/nerrad567/trackside-core/internal/layout"
)

// State is the session state of the feed.
type State int

const (
	Connected State = iota
	ShuttingDown
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case ShuttingDown:
		return "shutting_down"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Handler is invoked after an unexpected loss with the last known layout state.
type Handler func(state *layout.Model)

// Logger defines the logging interface used by the Monitor.
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

// Monitor is the three-state session machine.
// All methods are safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	state   State
	fired   bool
	handler Handler
	model   *layout.Model
	logger  Logger
}

// NewMonitor creates a monitor in the Connected state.
func NewMonitor(model *layout.Model) *Monitor {
	return &Monitor{
		state:  Connected,
		model:  model,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetDisconnectHandler registers the handler for unexpected loss. A nil handler disables it.
func (m *Monitor) SetDisconnectHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// State returns the current session state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnShutdownSignal records an announced shutdown. Only Connected moves.
func (m *Monitor) OnShutdownSignal() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Connected {
		return
	}
	m.state = ShuttingDown
	m.logger.Info("feed announced shutdown")
}

// OnTransportClosed records the end of the transport. From Connected the
// disconnect handler fires, at most once per session.
func (m *Monitor) OnTransportClosed() {
	m.mu.Lock()
	prev := m.state
	m.state = Disconnected

	var h Handler
	switch prev {
	case ShuttingDown:
		m.logger.Info("feed closed after shutdown notice")
	case Connected:
		m.logger.Warn("feed lost without shutdown notice")
		if !m.fired {
			m.fired = true
			h = m.handler
		}
	}
	logger := m.logger
	m.mu.Unlock()

	if h != nil {
		m.invoke(h, logger)
	}
}

// Reset begins a new session after reconnecting.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Connected
	m.fired = false
}

// invoke runs the handler outside the lock so it can read state freely.
func (m *Monitor) invoke(h Handler, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("disconnect handler panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	h(m.model)
}
