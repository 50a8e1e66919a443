package automation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/trackside-core/internal/condition"
	"github.com/nerrad567/trackside-core/internal/layout"
	"github.com/nerrad567/trackside-core/internal/trigger"
)

// TriggerType selects which inbound stream an automation listens to.
type TriggerType string

const (
	TriggerTime  TriggerType = "time"
	TriggerEvent TriggerType = "event"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	return t == TriggerTime || t == TriggerEvent
}

// ParseTriggerType converts a config string into a TriggerType.
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown trigger type %q", ErrConfig, s)
	}
	return t, nil
}

// Handle identifies a registration.
type Handle string

// Script is the unit of work an automation runs. The context is cancelled
// when the watchdog fires; honouring it is optional.
type Script func(ctx context.Context, state *layout.Model) (any, error)

// SuccessFunc receives the script result and the time since dispatch.
type SuccessFunc func(result any, elapsed time.Duration)

// ErrorFunc receives an *ExecutionError or an error wrapping ErrTimeout.
type ErrorFunc func(err error, elapsed time.Duration)

// Spec describes an automation to register.
type Spec struct {
	Name    string
	Trigger TriggerType

	// Pattern is a time pattern ("HH:MM", "*/15:00", "" for every minute)
	// or an id glob ("fb_*") depending on Trigger.
	Pattern string

	// Guard is a condition expression. Empty always passes.
	Guard string

	// Timeout is the watchdog deadline. Zero selects the engine default.
	Timeout time.Duration

	OnSuccess SuccessFunc
	OnError   ErrorFunc
	Script    Script
}

// Registration is a compiled Spec. It is immutable once added to a Registry.
type Registration struct {
	Handle    Handle
	Name      string
	Trigger   TriggerType
	Pattern   string
	Guard     string
	Timeout   time.Duration
	CreatedAt time.Time

	onSuccess SuccessFunc
	onError   ErrorFunc
	script    Script

	timePattern  trigger.TimePattern
	eventPattern trigger.EventPattern
	guard        *condition.Expression

	removed atomic.Bool
}

// Removed reports whether the registration has been unregistered.
// Queued runs of a removed registration are discarded.
func (r *Registration) Removed() bool {
	return r.removed.Load()
}

// Info returns the descriptive fields of the registration.
func (r *Registration) Info() RegistrationInfo {
	return RegistrationInfo{
		Handle:    r.Handle,
		Name:      r.Name,
		Trigger:   r.Trigger,
		Pattern:   r.Pattern,
		Guard:     r.Guard,
		Timeout:   r.Timeout,
		CreatedAt: r.CreatedAt,
	}
}

// RegistrationInfo is a read-only view of a Registration.
type RegistrationInfo struct {
	Handle    Handle        `json:"handle"`
	Name      string        `json:"name"`
	Trigger   TriggerType   `json:"trigger"`
	Pattern   string        `json:"pattern"`
	Guard     string        `json:"guard,omitempty"`
	Timeout   time.Duration `json:"timeout"`
	CreatedAt time.Time     `json:"created_at"`
}

// RunStatus is the outcome of a run.
type RunStatus string

const (
	StatusSuccess   RunStatus = "success"
	StatusError     RunStatus = "error"
	StatusTimeout   RunStatus = "timeout"
	StatusCancelled RunStatus = "cancelled"
)

// RunRecord is the outcome of one run, delivered to every RunRecorder.
//
// A run that outlives its watchdog produces two records with the same ID:
// the timeout and, when the script eventually returns, a late one with
// Late set and the final elapsed time.
type RunRecord struct {
	ID             string        `json:"id"`
	RegistrationID string        `json:"registration_id"`
	Name           string        `json:"name"`
	TriggerType    TriggerType   `json:"trigger_type"`
	TriggerDetail  string        `json:"trigger_detail"`
	Status         RunStatus     `json:"status"`
	Error          string        `json:"error,omitempty"`
	Late           bool          `json:"late"`
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Job is a matched registration waiting for a worker.
type Job struct {
	Registration *Registration

	// TriggerDetail names what caused the match, e.g. "08:30" or "fb/fb_12".
	TriggerDetail string

	QueuedAt time.Time
}

// RunRecorder receives run outcomes.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// RunRecorderFunc adapts a function to RunRecorder.
type RunRecorderFunc func(ctx context.Context, run RunRecord) error

// RecordRun calls f(ctx, run).
func (f RunRecorderFunc) RecordRun(ctx context.Context, run RunRecord) error {
	return f(ctx, run)
}

// GenerateID creates a new unique identifier for handles and runs.
func GenerateID() string {
	return uuid.New().String()
}
