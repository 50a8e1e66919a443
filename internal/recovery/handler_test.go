package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/trackside-core/internal/infrastructure/database"
	"github.com/nerrad567/trackside-core/internal/layout"
	"github.com/nerrad567/trackside-core/migrations"
)

// ─── Test Helpers ───────────────────────────────────────────────────────────

type published struct {
	topic    string
	payload  any
	retained bool
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *mockPublisher) PublishJSON(topic string, v any, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: v, retained: retained})
	return nil
}

type failingRepo struct {
	layout.SnapshotRepository
}

func (failingRepo) Save(context.Context, string, layout.Snapshot) (string, error) {
	return "", errors.New("disk full")
}

var disconnectTime = time.Date(2026, 5, 2, 21, 15, 0, 0, time.UTC)

func setupRepo(t *testing.T) *layout.SQLiteSnapshotRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	return layout.NewSQLiteSnapshotRepository(db.DB)
}

func busyLayout(t *testing.T) *layout.Model {
	t.Helper()
	m := layout.NewModel()
	m.SetClock(layout.Clock{Hour: 21, Minute: 14, Running: true})

	updates := []struct {
		kind  layout.Kind
		id    string
		attrs map[string]any
	}{
		{layout.KindLocomotive, "lc_br01", map[string]any{"V": 40.0, "dir": true, "blockid": "bk_station"}},
		{layout.KindLocomotive, "lc_shunter", map[string]any{"V": 0.0, "blockid": "bk_yard"}},
		{layout.KindBlock, "bk_station", map[string]any{"occ": true, "locid": "lc_br01"}},
		{layout.KindBlock, "bk_yard", map[string]any{"occ": true, "locid": "lc_shunter"}},
		{layout.KindBlock, "bk_main", map[string]any{"occ": false}},
		{layout.KindSwitch, "sw_1", map[string]any{"state": "straight"}},
	}
	for _, u := range updates {
		if _, err := m.Apply(u.kind, u.id, u.attrs); err != nil {
			t.Fatalf("Apply(%s, %s) error = %v", u.kind, u.id, err)
		}
	}
	return m
}

func newTestHandler(cfg Config, repo layout.SnapshotRepository, pub Publisher) *Handler {
	h := NewHandler(cfg, repo, pub, "rail/core/emergency")
	h.now = func() time.Time { return disconnectTime }
	return h
}

// ─── Recover ────────────────────────────────────────────────────────────────

func TestRecover_AllSteps(t *testing.T) {
	repo := setupRepo(t)
	pub := &mockPublisher{}
	stateFile := filepath.Join(t.TempDir(), "data", "emergency_state.json")

	h := newTestHandler(Config{StateFile: stateFile, EmergencyStop: true}, repo, pub)

	report, err := h.Recover(t.Context(), busyLayout(t))
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	if report.DisconnectReason != "unexpected_disconnect" {
		t.Errorf("DisconnectReason = %q, want unexpected_disconnect", report.DisconnectReason)
	}
	if !report.DisconnectTime.Equal(disconnectTime) {
		t.Errorf("DisconnectTime = %v, want %v", report.DisconnectTime, disconnectTime)
	}
	if len(report.Summary.MovingLocos) != 1 || report.Summary.MovingLocos[0].ID != "lc_br01" {
		t.Errorf("MovingLocos = %+v, want only lc_br01", report.Summary.MovingLocos)
	}
	if len(report.Summary.OccupiedBlocks) != 2 {
		t.Errorf("OccupiedBlocks = %+v, want 2", report.Summary.OccupiedBlocks)
	}

	// Snapshot stored.
	if report.SnapshotID == "" {
		t.Fatal("SnapshotID is empty")
	}
	latest, err := repo.Latest(t.Context())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != report.SnapshotID || latest.Reason != SnapshotReason {
		t.Errorf("Latest() = %s/%s, want %s/%s", latest.ID, latest.Reason, report.SnapshotID, SnapshotReason)
	}

	// File written.
	data, err := os.ReadFile(stateFile)
	if err != nil {
		t.Fatalf("reading recovery file: %v", err)
	}
	var onDisk struct {
		DisconnectTime   time.Time      `json:"disconnect_time"`
		DisconnectReason string         `json:"disconnect_reason"`
		SnapshotID       string         `json:"snapshot_id"`
		Summary          layout.Summary `json:"summary"`
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("recovery file is not JSON: %v", err)
	}
	if onDisk.DisconnectReason != "unexpected_disconnect" || onDisk.SnapshotID != report.SnapshotID {
		t.Errorf("recovery file = %+v", onDisk)
	}
	if len(onDisk.Summary.MovingLocos) != 1 || onDisk.Summary.MovingLocos[0].Block != "bk_station" {
		t.Errorf("recovery file moving locos = %+v", onDisk.Summary.MovingLocos)
	}

	// Notice published.
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "rail/core/emergency" || msg.retained {
		t.Errorf("published to %q retained=%v", msg.topic, msg.retained)
	}
	notice, ok := msg.payload.(Notice)
	if !ok {
		t.Fatalf("payload type = %T, want Notice", msg.payload)
	}
	if notice.Action != ActionStopAll || len(notice.MovingLocos) != 1 {
		t.Errorf("notice = %+v", notice)
	}

	if h.LastReport() != report {
		t.Error("LastReport() did not return the latest report")
	}
}

func TestRecover_NilState(t *testing.T) {
	h := newTestHandler(Config{}, nil, nil)
	if _, err := h.Recover(t.Context(), nil); !errors.Is(err, ErrNoState) {
		t.Errorf("Recover(nil) error = %v, want ErrNoState", err)
	}
}

func TestRecover_OptionalStepsSkipped(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(Config{EmergencyStop: false}, nil, pub)

	report, err := h.Recover(t.Context(), busyLayout(t))
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if report.SnapshotID != "" {
		t.Errorf("SnapshotID = %q, want empty without a repository", report.SnapshotID)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("published %d messages with emergency stop disabled", len(pub.msgs))
	}
}

func TestRecover_StepFailuresAreIndependent(t *testing.T) {
	pub := &mockPublisher{}
	stateFile := filepath.Join(t.TempDir(), "state.json")
	h := newTestHandler(Config{StateFile: stateFile, EmergencyStop: true}, failingRepo{}, pub)

	report, err := h.Recover(t.Context(), busyLayout(t))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Recover() error = %v, want the save failure", err)
	}
	if report == nil {
		t.Fatal("Recover() returned nil report on a partial failure")
	}
	if _, err := os.Stat(stateFile); err != nil {
		t.Errorf("recovery file missing after snapshot failure: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Errorf("published %d messages, want 1 after snapshot failure", len(pub.msgs))
	}
}

func TestRecover_PublishFailure(t *testing.T) {
	pub := &mockPublisher{err: errors.New("not connected")}
	h := newTestHandler(Config{EmergencyStop: true}, nil, pub)

	_, err := h.Recover(t.Context(), busyLayout(t))
	if err == nil || !strings.Contains(err.Error(), "emergency notice") {
		t.Errorf("Recover() error = %v, want emergency notice failure", err)
	}
}

func TestRecover_PrunesSnapshots(t *testing.T) {
	repo := setupRepo(t)
	h := newTestHandler(Config{SnapshotRetention: 2}, repo, nil)
	model := busyLayout(t)

	for i := range 4 {
		if _, err := h.Recover(t.Context(), model); err != nil {
			t.Fatalf("Recover() #%d error = %v", i, err)
		}
	}

	stored, err := repo.List(t.Context(), 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d snapshots, want 2 after pruning", len(stored))
	}
}

func TestRecover_OverwritesFile(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(stateFile, []byte("stale"), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}
	h := newTestHandler(Config{StateFile: stateFile}, nil, nil)

	if _, err := h.Recover(t.Context(), busyLayout(t)); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	data, err := os.ReadFile(stateFile)
	if err != nil {
		t.Fatalf("reading recovery file: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("recovery file = %q, want JSON", data)
	}
	entries, err := os.ReadDir(filepath.Dir(stateFile))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d files, want only the recovery file", len(entries))
	}
}

// ─── Handle ─────────────────────────────────────────────────────────────────

func TestHandle_MatchesDisconnectHandler(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(Config{EmergencyStop: true}, nil, pub)

	var fn func(*layout.Model) = h.Handle
	fn(busyLayout(t))

	if h.LastReport() == nil {
		t.Fatal("LastReport() = nil after Handle")
	}
	if len(pub.msgs) != 1 {
		t.Errorf("published %d messages, want 1", len(pub.msgs))
	}
}
