package automation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/trackside-core/internal/condition"
	"github.com/nerrad567/trackside-core/internal/trigger"
)

// Logger defines the logging interface used by the automation package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a Logger that discards all output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DefaultTimeout is the watchdog deadline used when neither the Spec nor the
// Registry sets one.
const DefaultTimeout = 60 * time.Second

// Registry holds compiled registrations split by trigger type.
//
// Matching is on the hot path of every inbound message, so the per-type
// slices are copy-on-write: readers take the current slice under a read
// lock and iterate without holding it.
type Registry struct {
	mu             sync.RWMutex
	byHandle       map[Handle]*Registration
	timeRegs       []*Registration
	eventRegs      []*Registration
	defaultTimeout time.Duration
	logger         Logger
	now            func() time.Time
}

// NewRegistry creates an empty registry. A non-positive defaultTimeout
// selects DefaultTimeout.
func NewRegistry(defaultTimeout time.Duration) *Registry {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Registry{
		byHandle:       make(map[Handle]*Registration),
		defaultTimeout: defaultTimeout,
		logger:         noopLogger{},
		now:            time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Add compiles spec and stores it under a new handle.
//
// Returns an error wrapping ErrConfig when the name, trigger type, pattern,
// guard, timeout or script is invalid. Nothing is stored in that case.
func (r *Registry) Add(spec Spec) (Handle, error) {
	reg, err := r.compile(spec)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byHandle[reg.Handle] = reg
	switch reg.Trigger {
	case TriggerTime:
		r.timeRegs = appendCopy(r.timeRegs, reg)
	case TriggerEvent:
		r.eventRegs = appendCopy(r.eventRegs, reg)
	}

	r.logger.Info("automation registered",
		"handle", reg.Handle,
		"name", reg.Name,
		"trigger", reg.Trigger,
		"pattern", reg.Pattern,
	)
	return reg.Handle, nil
}

func (r *Registry) compile(spec Spec) (*Registration, error) {
	handle := Handle(GenerateID())
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = string(handle)
	}
	if spec.Script == nil {
		return nil, fmt.Errorf("%w: %q has no script", ErrConfig, name)
	}
	if spec.Timeout < 0 {
		return nil, fmt.Errorf("%w: %q timeout cannot be negative", ErrConfig, name)
	}

	reg := &Registration{
		Handle:    handle,
		Name:      name,
		Trigger:   spec.Trigger,
		Pattern:   spec.Pattern,
		Guard:     spec.Guard,
		Timeout:   spec.Timeout,
		CreatedAt: r.now().UTC(),
		onSuccess: spec.OnSuccess,
		onError:   spec.OnError,
		script:    spec.Script,
	}
	if reg.Timeout == 0 {
		reg.Timeout = r.defaultTimeout
	}

	switch spec.Trigger {
	case TriggerTime:
		p, err := trigger.ParseTimePattern(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrConfig, name, err)
		}
		reg.timePattern = p
	case TriggerEvent:
		p, err := trigger.ParseEventPattern(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrConfig, name, err)
		}
		reg.eventPattern = p
	default:
		return nil, fmt.Errorf("%w: %q has unknown trigger type %q", ErrConfig, name, spec.Trigger)
	}

	guard, err := condition.Compile(spec.Guard)
	if err != nil {
		return nil, fmt.Errorf("%w: %q guard: %w", ErrConfig, name, err)
	}
	reg.guard = guard

	return reg, nil
}

// Remove unregisters a handle. Runs already queued for it are discarded.
// Returns ErrNotFound if the handle is unknown.
func (r *Registry) Remove(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byHandle[h]
	if !ok {
		return ErrNotFound
	}
	reg.removed.Store(true)
	delete(r.byHandle, h)

	switch reg.Trigger {
	case TriggerTime:
		r.timeRegs = removeCopy(r.timeRegs, reg)
	case TriggerEvent:
		r.eventRegs = removeCopy(r.eventRegs, reg)
	}

	r.logger.Info("automation unregistered", "handle", h, "name", reg.Name)
	return nil
}

// Get returns the registration for a handle.
func (r *Registry) Get(h Handle) (RegistrationInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.byHandle[h]
	if !ok {
		return RegistrationInfo{}, false
	}
	return reg.Info(), true
}

// MatchTime returns the time registrations whose pattern matches tick,
// in registration order.
func (r *Registry) MatchTime(tick trigger.Tick) []*Registration {
	r.mu.RLock()
	regs := r.timeRegs
	r.mu.RUnlock()

	var out []*Registration
	for _, reg := range regs {
		if reg.timePattern.MatchesTick(tick) {
			out = append(out, reg)
		}
	}
	return out
}

// MatchEvent returns the event registrations whose glob matches id,
// in registration order. Kinds are not considered.
func (r *Registry) MatchEvent(id string) []*Registration {
	r.mu.RLock()
	regs := r.eventRegs
	r.mu.RUnlock()

	var out []*Registration
	for _, reg := range regs {
		if reg.eventPattern.Match(id) {
			out = append(out, reg)
		}
	}
	return out
}

// Count returns the number of registrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}

// List returns every registration, time triggers first, each group in
// registration order.
func (r *Registry) List() []RegistrationInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegistrationInfo, 0, len(r.byHandle))
	for _, reg := range r.timeRegs {
		out = append(out, reg.Info())
	}
	for _, reg := range r.eventRegs {
		out = append(out, reg.Info())
	}
	return out
}

func appendCopy(regs []*Registration, reg *Registration) []*Registration {
	out := make([]*Registration, len(regs), len(regs)+1)
	copy(out, regs)
	return append(out, reg)
}

func removeCopy(regs []*Registration, reg *Registration) []*Registration {
	out := make([]*Registration, 0, len(regs))
	for _, existing := range regs {
		if existing != reg {
			out = append(out, existing)
		}
	}
	return out
}
