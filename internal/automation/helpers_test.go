package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/trackside-core/internal/layout"
)

// ─── Test Helpers ───────────────────────────────────────────────────────────

const waitTimeout = 2 * time.Second

// runLog is a RunRecorder that keeps every record and signals each one.
type runLog struct {
	mu   sync.Mutex
	runs []RunRecord
	ch   chan RunRecord
}

func newRunLog() *runLog {
	return &runLog{ch: make(chan RunRecord, 128)}
}

func (l *runLog) RecordRun(_ context.Context, run RunRecord) error {
	l.mu.Lock()
	l.runs = append(l.runs, run)
	l.mu.Unlock()
	l.ch <- run
	return nil
}

func (l *runLog) next(t *testing.T) RunRecord {
	t.Helper()
	select {
	case run := <-l.ch:
		return run
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a run record")
		return RunRecord{}
	}
}

func (l *runLog) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case run := <-l.ch:
		t.Fatalf("unexpected run record: %+v", run)
	case <-time.After(within):
	}
}

// logEntry is a captured log line.
type logEntry struct {
	level string
	msg   string
	args  []any
}

// captureLogger records log calls for assertions.
type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

// count returns how many entries have the given level and message.
func (l *captureLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

// compileSpec builds a Registration without adding it to a registry.
func compileSpec(t *testing.T, spec Spec) *Registration {
	t.Helper()
	if spec.Trigger == "" {
		spec.Trigger = TriggerEvent
	}
	if spec.Pattern == "" && spec.Trigger == TriggerEvent {
		spec.Pattern = "*"
	}
	reg, err := NewRegistry(time.Second).compile(spec)
	if err != nil {
		t.Fatalf("compile(%q) error = %v", spec.Name, err)
	}
	return reg
}

func returning(v any) Script {
	return func(context.Context, *layout.Model) (any, error) { return v, nil }
}

func failing(msg string) Script {
	return func(context.Context, *layout.Model) (any, error) { return nil, errors.New(msg) }
}

// blocking returns a script that signals started and waits for release.
func blocking(started chan<- struct{}, release <-chan struct{}) Script {
	return func(context.Context, *layout.Model) (any, error) {
		if started != nil {
			started <- struct{}{}
		}
		<-release
		return "released", nil
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func startScheduler(t *testing.T, cfg SchedulerConfig) (*Scheduler, *runLog) {
	t.Helper()
	s := NewScheduler(cfg, layout.NewModel(), nil)
	log := newRunLog()
	s.AddRecorder(log)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(waitTimeout) })
	return s, log
}
