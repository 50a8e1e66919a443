package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/trackside-core/internal/condition"
	"github.com/nerrad567/trackside-core/internal/connection"
	"github.com/nerrad567/trackside-core/internal/layout"
	"github.com/nerrad567/trackside-core/internal/trigger"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	ShutdownGrace  time.Duration

	// Verbose logs every fired and skipped decision at info.
	Verbose bool
}

// EntityHook is called after each applied entity update, on the dispatch path.
type EntityHook func(entity layout.Entity)

// Engine is the entry point for inbound feed events and registrations.
//
// Inbound events are processed one at a time in arrival order: the state
// mutation (or clock tick) is applied, matching registrations are found,
// guards are evaluated against live state, and survivors are handed to the
// Scheduler. Only the handoff can block.
type Engine struct {
	cfg       EngineConfig
	model     *layout.Model
	tracker   *trigger.Tracker
	registry  *Registry
	scheduler *Scheduler
	evaluator *condition.Evaluator
	monitor   *connection.Monitor
	logger    Logger

	// dispatchMu serialises inbound event processing.
	dispatchMu sync.Mutex
	ctx        context.Context
	metrics    *Metrics
	entityHook EntityHook
}

// NewEngine creates an engine with an empty layout model.
func NewEngine(cfg EngineConfig, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	model := layout.NewModel()

	registry := NewRegistry(cfg.DefaultTimeout)
	registry.SetLogger(logger)

	monitor := connection.NewMonitor(model)
	monitor.SetLogger(logger)

	scheduler := NewScheduler(SchedulerConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	}, model, logger)

	return &Engine{
		cfg:       cfg,
		model:     model,
		tracker:   trigger.NewTracker(),
		registry:  registry,
		scheduler: scheduler,
		evaluator: condition.NewEvaluator(logger),
		monitor:   monitor,
		logger:    logger,
		ctx:       context.Background(),
	}
}

// SetMetrics attaches Prometheus metrics. Call before Start.
func (e *Engine) SetMetrics(m *Metrics) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	e.metrics = m
	if m != nil {
		e.scheduler.AddRecorder(m)
		m.SetRegistrations(e.registry.Count())
	}
}

// SetEntityHook installs a hook called after every applied entity update.
func (e *Engine) SetEntityHook(hook EntityHook) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	e.entityHook = hook
}

// AddRecorder registers a destination for run outcomes.
func (e *Engine) AddRecorder(r RunRecorder) {
	e.scheduler.AddRecorder(r)
}

// Start launches the scheduler's workers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.scheduler.Start(ctx); err != nil {
		return err
	}
	e.dispatchMu.Lock()
	e.ctx = ctx
	e.dispatchMu.Unlock()
	return nil
}

// Close stops the scheduler, discarding queued runs and waiting up to grace
// for running scripts. A non-positive grace uses EngineConfig.ShutdownGrace.
func (e *Engine) Close(grace time.Duration) error {
	if grace <= 0 {
		grace = e.cfg.ShutdownGrace
	}
	return e.scheduler.Stop(grace)
}

// ─── Registrations ──────────────────────────────────────────────────────────

// Register compiles and adds an automation. Errors wrap ErrConfig.
func (e *Engine) Register(spec Spec) (Handle, error) {
	h, err := e.registry.Add(spec)
	if err != nil {
		e.logger.Warn("automation rejected", "name", spec.Name, "error", err)
		return "", err
	}
	e.metrics.SetRegistrations(e.registry.Count())
	return h, nil
}

// Unregister removes an automation. Queued runs for it are discarded.
func (e *Engine) Unregister(h Handle) error {
	if err := e.registry.Remove(h); err != nil {
		return err
	}
	e.metrics.SetRegistrations(e.registry.Count())
	return nil
}

// Registrations lists every registered automation.
func (e *Engine) Registrations() []RegistrationInfo {
	return e.registry.List()
}

// ─── Inbound events ─────────────────────────────────────────────────────────

// OnClockUpdate handles a clock message from a running layout clock.
func (e *Engine) OnClockUpdate(hour, minute int) error {
	return e.OnClockState(hour, minute, true)
}

// OnClockState handles a clock message. Time automations are matched only
// when the minute changes.
func (e *Engine) OnClockState(hour, minute int, running bool) error {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	tick, ok, err := e.tracker.Observe(hour, minute, running)
	if err != nil {
		e.logger.Warn("ignoring clock update", "hour", hour, "minute", minute, "error", err)
		return err
	}
	clock := e.tracker.State()
	e.model.SetClock(clock)
	if !ok {
		return nil
	}
	e.metrics.ObserveEvent("clock")

	matches := e.registry.MatchTime(tick)
	if len(matches) == 0 {
		return nil
	}
	return e.dispatch(matches, condition.TimeContext(clock, e.model), tick.String())
}

// OnEntityUpdate applies a state change and then dispatches the event
// automations whose pattern matches id.
func (e *Engine) OnEntityUpdate(kind layout.Kind, id string, attrs map[string]any) error {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	entity, err := e.model.Apply(kind, id, attrs)
	if err != nil {
		e.logger.Warn("ignoring entity update", "kind", kind, "id", id, "error", err)
		return err
	}
	e.metrics.ObserveEvent("entity")
	if e.entityHook != nil {
		e.entityHook(entity)
	}

	matches := e.registry.MatchEvent(id)
	if len(matches) == 0 {
		return nil
	}
	ctx := condition.EventContext(e.model.Clock(), e.model, entity)
	return e.dispatch(matches, ctx, string(kind)+"/"+id)
}

// dispatch evaluates guards and submits survivors. Caller holds dispatchMu.
func (e *Engine) dispatch(matches []*Registration, ctx condition.Context, detail string) error {
	var errs []error
	for _, reg := range matches {
		fired := e.evaluator.Evaluate(reg.guard, ctx)
		e.metrics.ObserveDecision(fired)
		e.decision(fired, reg, detail)
		if !fired {
			continue
		}

		job := Job{Registration: reg, TriggerDetail: detail}
		if err := e.scheduler.Submit(e.ctx, job); err != nil {
			e.logger.Error("failed to submit automation", "automation", reg.Name, "error", err)
			errs = append(errs, fmt.Errorf("submitting %q: %w", reg.Name, err))
		}
	}
	e.metrics.SetQueueDepth(e.scheduler.QueueDepth())
	return errors.Join(errs...)
}

func (e *Engine) decision(fired bool, reg *Registration, detail string) {
	msg := "automation skipped"
	if fired {
		msg = "automation fired"
	}
	args := []any{"automation", reg.Name, "trigger", detail}
	if e.cfg.Verbose {
		e.logger.Info(msg, args...)
		return
	}
	e.logger.Debug(msg, args...)
}

// ─── Connection lifecycle ───────────────────────────────────────────────────

// OnShutdownSignal records an announced shutdown of the feed.
func (e *Engine) OnShutdownSignal() {
	e.monitor.OnShutdownSignal()
}

// OnTransportClosed records the end of the feed transport. Without a prior
// shutdown signal this invokes the disconnect handler.
func (e *Engine) OnTransportClosed() {
	e.monitor.OnTransportClosed()
}

// ResetConnection starts a new feed session after reconnecting.
func (e *Engine) ResetConnection() {
	e.monitor.Reset()
}

// ConnectionState returns the feed session state.
func (e *Engine) ConnectionState() connection.State {
	return e.monitor.State()
}

// SetDisconnectHandler registers the handler for unexpected feed loss.
// It runs at most once per session.
func (e *Engine) SetDisconnectHandler(fn func(state *layout.Model)) {
	e.monitor.SetDisconnectHandler(connection.Handler(fn))
}

// ─── State ──────────────────────────────────────────────────────────────────

// ExportState returns a deep copy of the layout and clock.
func (e *Engine) ExportState() layout.Snapshot {
	return e.model.Export()
}

// State returns the live layout model.
func (e *Engine) State() *layout.Model {
	return e.model
}

// Stats returns the scheduler counters.
func (e *Engine) Stats() SchedulerStats {
	return e.scheduler.Stats()
}
