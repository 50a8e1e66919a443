package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nerrad567/trackside-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/trackside-core/internal/layout"
)

const (
	// SnapshotReason tags snapshots stored by the handler.
	SnapshotReason = mqtt.ReasonUnexpectedDisconnect

	// ActionStopAll asks downstream consumers to halt every locomotive.
	ActionStopAll = "stop_all"

	defaultStepTimeout = 5 * time.Second
)

// ErrNoState is returned when Recover is called without a model.
var ErrNoState = errors.New("recovery: no layout state")

// Publisher sends the emergency notice.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Logger defines the logging interface used by the Handler.
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

// Config controls which recovery steps run.
type Config struct {
	// StateFile is the JSON recovery file. Empty skips the file.
	StateFile string

	// EmergencyStop publishes the emergency notice.
	EmergencyStop bool

	// SnapshotRetention is how many stored snapshots to keep. Zero keeps all.
	SnapshotRetention int

	// StepTimeout bounds each database operation. Default: 5s
	StepTimeout time.Duration
}

// Report is the content of the recovery file.
type Report struct {
	DisconnectTime   time.Time       `json:"disconnect_time"`
	DisconnectReason string          `json:"disconnect_reason"`
	SnapshotID       string          `json:"snapshot_id,omitempty"`
	Summary          layout.Summary  `json:"summary"`
	State            layout.Snapshot `json:"state"`
}

// Notice is the emergency payload published after a disconnect.
type Notice struct {
	Action         string                  `json:"action"`
	Reason         string                  `json:"reason"`
	MovingLocos    []layout.LocoPosition   `json:"moving_locomotives"`
	OccupiedBlocks []layout.BlockOccupancy `json:"occupied_blocks"`
	Timestamp      time.Time               `json:"timestamp"`
}

// Handler reacts to an unexpected feed loss.
type Handler struct {
	cfg       Config
	snapshots layout.SnapshotRepository
	pub       Publisher
	topic     string
	logger    Logger
	now       func() time.Time

	mu   sync.Mutex
	last *Report
}

// NewHandler creates a Handler. snapshots and pub may be nil to skip
// persistence and the emergency notice.
func NewHandler(cfg Config, snapshots layout.SnapshotRepository, pub Publisher, topic string) *Handler {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	return &Handler{
		cfg:       cfg,
		snapshots: snapshots,
		pub:       pub,
		topic:     topic,
		logger:    noopLogger{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the handler.
func (h *Handler) SetLogger(logger Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Handle runs the recovery steps. Its signature matches the engine's
// disconnect handler.
func (h *Handler) Handle(state *layout.Model) {
	if _, err := h.Recover(context.Background(), state); err != nil {
		h.logger.Error("disconnect recovery incomplete", "error", err)
	}
}

// Recover runs every recovery step and returns the report together with
// any step failures joined.
func (h *Handler) Recover(ctx context.Context, state *layout.Model) (*Report, error) {
	if state == nil {
		return nil, ErrNoState
	}

	snap := state.Export()
	report := &Report{
		DisconnectTime:   h.now(),
		DisconnectReason: SnapshotReason,
		Summary:          snap.Summary(),
		State:            snap,
	}

	h.logger.Warn("layout feed lost unexpectedly",
		"moving_locomotives", len(report.Summary.MovingLocos),
		"occupied_blocks", len(report.Summary.OccupiedBlocks),
	)
	for _, lc := range report.Summary.MovingLocos {
		h.logger.Warn("locomotive was moving",
			"loco_id", lc.ID, "block_id", lc.Block, "speed", lc.Speed, "forward", lc.Forward)
	}

	var errs []error
	if err := h.persist(ctx, report); err != nil {
		errs = append(errs, err)
	}
	if err := h.writeFile(report); err != nil {
		errs = append(errs, err)
	}
	if err := h.publishNotice(report); err != nil {
		errs = append(errs, err)
	}

	h.mu.Lock()
	h.last = report
	h.mu.Unlock()

	return report, errors.Join(errs...)
}

// LastReport returns the most recent report, or nil if none has run.
func (h *Handler) LastReport() *Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Handler) persist(ctx context.Context, report *Report) error {
	if h.snapshots == nil {
		return nil
	}

	saveCtx, cancel := context.WithTimeout(ctx, h.cfg.StepTimeout)
	defer cancel()

	id, err := h.snapshots.Save(saveCtx, SnapshotReason, report.State)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	report.SnapshotID = id

	if h.cfg.SnapshotRetention > 0 {
		pruned, err := h.snapshots.Prune(saveCtx, h.cfg.SnapshotRetention)
		if err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		if pruned > 0 {
			h.logger.Debug("pruned old snapshots", "count", pruned)
		}
	}

	h.logger.Info("layout snapshot stored", "snapshot_id", id)
	return nil
}

// writeFile replaces the recovery file atomically via a temp file and rename.
func (h *Handler) writeFile(report *Report) error {
	if h.cfg.StateFile == "" {
		return nil
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling recovery report: %w", err)
	}

	dir := filepath.Dir(h.cfg.StateFile)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating recovery directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".recovery-*.json")
	if err != nil {
		return fmt.Errorf("creating recovery file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing recovery file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing recovery file: %w", err)
	}
	if err := os.Rename(tmpName, h.cfg.StateFile); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming recovery file: %w", err)
	}

	h.logger.Info("recovery file written", "path", h.cfg.StateFile)
	return nil
}

func (h *Handler) publishNotice(report *Report) error {
	if !h.cfg.EmergencyStop || h.pub == nil || h.topic == "" {
		return nil
	}

	notice := Notice{
		Action:         ActionStopAll,
		Reason:         report.DisconnectReason,
		MovingLocos:    report.Summary.MovingLocos,
		OccupiedBlocks: report.Summary.OccupiedBlocks,
		Timestamp:      report.DisconnectTime,
	}
	if err := h.pub.PublishJSON(h.topic, notice, false); err != nil {
		return fmt.Errorf("publishing emergency notice: %w", err)
	}

	h.logger.Warn("emergency notice published", "topic", h.topic)
	return nil
}
