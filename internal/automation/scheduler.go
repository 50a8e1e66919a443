package automation

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/trackside-core/internal/layout"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64

	// recordTimeout bounds each RunRecorder call.
	recordTimeout = 5 * time.Second
)

// SchedulerConfig sizes the worker pool.
type SchedulerConfig struct {
	// Workers is the number of scripts that may run at once. Default: 4
	Workers int

	// QueueSize bounds jobs waiting for a worker. Default: 64
	QueueSize int
}

// SchedulerStats are cumulative counters since construction.
type SchedulerStats struct {
	Submitted  uint64
	Succeeded  uint64
	Failed     uint64
	TimedOut   uint64
	Late       uint64
	Cancelled  uint64
	QueueDepth int
}

// Scheduler runs submitted jobs on a bounded worker pool.
//
// Submit blocks while the queue is full. Each run gets a watchdog; exactly
// one of OnSuccess or OnError is called per run, whichever of completion and
// watchdog comes first.
type Scheduler struct {
	cfg    SchedulerConfig
	state  *layout.Model
	logger Logger
	now    func() time.Time

	queue  chan Job
	stopCh chan struct{}

	// submitMu lets Stop wait out Submits that are already selecting.
	submitMu sync.RWMutex
	stopped  bool
	stopOnce sync.Once

	lifeMu  sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	recMu     sync.RWMutex
	recorders []RunRecorder

	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64
	late      atomic.Uint64
	cancelled atomic.Uint64
}

// NewScheduler creates a scheduler. Workers do not run until Start.
func NewScheduler(cfg SchedulerConfig, state *layout.Model, logger Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		cfg:    cfg,
		state:  state,
		logger: logger,
		now:    time.Now,
		queue:  make(chan Job, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
}

// AddRecorder registers a destination for run outcomes.
func (s *Scheduler) AddRecorder(r RunRecorder) {
	if r == nil {
		return
	}
	s.recMu.Lock()
	s.recorders = append(s.recorders, r)
	s.recMu.Unlock()
}

// Start launches the workers. Script contexts derive from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.started {
		return ErrSchedulerStarted
	}
	if s.isStopping() {
		return ErrSchedulerStopped
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	for i := 0; i < s.cfg.Workers; i++ {
		group.Go(func() error {
			s.worker(groupCtx)
			return nil
		})
	}

	s.started = true
	s.cancel = cancel
	s.group = group

	s.logger.Info("scheduler started", "workers", s.cfg.Workers, "queue_size", s.cfg.QueueSize)
	return nil
}

// Submit queues a job, blocking while the queue is full.
//
// Returns ErrSchedulerStopped after Stop, or ctx.Err() if ctx ends first.
func (s *Scheduler) Submit(ctx context.Context, job Job) error {
	if job.Registration == nil {
		return fmt.Errorf("%w: job has no registration", ErrConfig)
	}

	s.submitMu.RLock()
	defer s.submitMu.RUnlock()

	if s.stopped || s.isStopping() {
		return ErrSchedulerStopped
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = s.now()
	}

	select {
	case s.queue <- job:
		s.submitted.Add(1)
		return nil
	case <-s.stopCh:
		return ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth returns the number of jobs waiting for a worker.
func (s *Scheduler) QueueDepth() int {
	return len(s.queue)
}

// Stats returns cumulative counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Submitted:  s.submitted.Load(),
		Succeeded:  s.succeeded.Load(),
		Failed:     s.failed.Load(),
		TimedOut:   s.timedOut.Load(),
		Late:       s.late.Load(),
		Cancelled:  s.cancelled.Load(),
		QueueDepth: s.QueueDepth(),
	}
}

// Stop stops accepting work, discards queued jobs and waits up to grace for
// running scripts. Returns ErrShutdownTimeout if they outlive grace; their
// contexts are cancelled but they are not preempted.
func (s *Scheduler) Stop(grace time.Duration) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.submitMu.Lock()
	s.stopped = true
	s.submitMu.Unlock()

	discarded := s.drain()

	s.lifeMu.Lock()
	group, cancel := s.group, s.cancel
	s.lifeMu.Unlock()

	if group == nil {
		s.logger.Info("scheduler stopped", "discarded", discarded)
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		cancel()
		s.logger.Info("scheduler stopped", "discarded", discarded)
		return nil
	case <-timer.C:
		cancel()
		s.logger.Warn("scheduler stopped with scripts still running",
			"discarded", discarded,
			"grace", grace,
		)
		return ErrShutdownTimeout
	}
}

func (s *Scheduler) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Scheduler) drain() int {
	n := 0
	for {
		select {
		case job := <-s.queue:
			s.discard(job, "scheduler stopped")
			n++
		default:
			return n
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.run(ctx, job)
		}
	}
}

// discard records a job that never started.
func (s *Scheduler) discard(job Job, reason string) {
	reg := job.Registration
	s.cancelled.Add(1)
	s.logger.Info("automation run cancelled",
		"automation", reg.Name,
		"trigger", job.TriggerDetail,
		"reason", reason,
	)
	s.record(RunRecord{
		ID:             GenerateID(),
		RegistrationID: string(reg.Handle),
		Name:           reg.Name,
		TriggerType:    reg.Trigger,
		TriggerDetail:  job.TriggerDetail,
		Status:         StatusCancelled,
		Error:          reason,
		StartedAt:      s.now().UTC(),
	})
}

func (s *Scheduler) run(parent context.Context, job Job) {
	reg := job.Registration
	if s.isStopping() {
		s.discard(job, "scheduler stopped")
		return
	}
	if reg.Removed() {
		s.discard(job, "unregistered")
		return
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Deadline and elapsed time count from dispatch.
	started := job.QueuedAt
	if started.IsZero() {
		started = s.now()
	}
	base := RunRecord{
		ID:             GenerateID(),
		RegistrationID: string(reg.Handle),
		Name:           reg.Name,
		TriggerType:    reg.Trigger,
		TriggerDetail:  job.TriggerDetail,
		StartedAt:      started.UTC(),
	}

	// claimed decides which of completion and watchdog reports the outcome.
	// timeoutDone orders a late record after the timeout record.
	var claimed atomic.Bool
	timeoutDone := make(chan struct{})

	expire := func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		defer close(timeoutDone)
		defer cancel()
		elapsed := s.now().Sub(started)
		err := fmt.Errorf("%w: %q exceeded %s", ErrTimeout, reg.Name, reg.Timeout)

		s.timedOut.Add(1)
		s.logger.Warn("automation timed out",
			"automation", reg.Name,
			"timeout", reg.Timeout,
		)
		s.reportError(reg, err, elapsed)

		rec := base
		rec.Status = StatusTimeout
		rec.Error = err.Error()
		rec.Elapsed = elapsed
		s.record(rec)
	}

	// A job that waited out its deadline in the queue is reported before it runs.
	var watchdog *time.Timer
	if remaining := reg.Timeout - s.now().Sub(started); remaining > 0 {
		watchdog = time.AfterFunc(remaining, expire)
	} else {
		expire()
	}

	result, err := s.execute(ctx, reg)
	if watchdog != nil {
		watchdog.Stop()
	}
	elapsed := s.now().Sub(started)

	if !claimed.CompareAndSwap(false, true) {
		<-timeoutDone
		s.late.Add(1)
		s.logger.Warn("automation finished after timeout",
			"automation", reg.Name,
			"elapsed", elapsed,
			"error", err,
		)
		rec := base
		rec.Status = StatusTimeout
		rec.Late = true
		rec.Elapsed = elapsed
		if err != nil {
			rec.Error = err.Error()
		}
		s.record(rec)
		return
	}

	rec := base
	rec.Elapsed = elapsed
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("automation failed", "automation", reg.Name, "error", err)
		s.reportError(reg, err, elapsed)
		rec.Status = StatusError
		rec.Error = err.Error()
	} else {
		s.succeeded.Add(1)
		s.logger.Debug("automation succeeded", "automation", reg.Name, "elapsed", elapsed)
		s.reportSuccess(reg, result, elapsed)
		rec.Status = StatusSuccess
	}
	s.record(rec)
}

// execute runs the script, converting a returned error or a panic into an
// *ExecutionError.
func (s *Scheduler) execute(ctx context.Context, reg *Registration) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ExecutionError{Name: reg.Name, Panic: r, Stack: string(debug.Stack())}
		}
	}()

	result, err = reg.script(ctx, s.state)
	if err != nil {
		return nil, &ExecutionError{Name: reg.Name, Err: err}
	}
	return result, nil
}

func (s *Scheduler) reportSuccess(reg *Registration, result any, elapsed time.Duration) {
	if reg.onSuccess == nil {
		return
	}
	s.guardCallback(reg.Name, "on_success", func() { reg.onSuccess(result, elapsed) })
}

func (s *Scheduler) reportError(reg *Registration, err error, elapsed time.Duration) {
	if reg.onError == nil {
		return
	}
	s.guardCallback(reg.Name, "on_error", func() { reg.onError(err, elapsed) })
}

func (s *Scheduler) guardCallback(name, which string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("automation callback panicked",
				"automation", name,
				"callback", which,
				"panic", r,
			)
		}
	}()
	fn()
}

func (s *Scheduler) record(run RunRecord) {
	s.recMu.RLock()
	recorders := s.recorders
	s.recMu.RUnlock()

	for _, r := range recorders {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := r.RecordRun(ctx, run); err != nil {
			s.logger.Error("failed to record automation run",
				"automation", run.Name,
				"run_id", run.ID,
				"error", err,
			)
		}
		cancel()
	}
}
