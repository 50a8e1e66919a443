package layout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/trackside-core/internal/infrastructure/database"
	"github.com/nerrad567/trackside-core/migrations"
)

func setupSnapshotDB(t *testing.T) *SQLiteSnapshotRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	return NewSQLiteSnapshotRepository(db.DB)
}

func snapshotAt(t *testing.T, at time.Time) Snapshot {
	t.Helper()
	m := NewModel()
	m.now = fixedNow(at)
	if _, err := m.Apply(KindBlock, "bk1", map[string]any{"occ": true, "locid": "lc1"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return m.Export()
}

func TestSnapshotRepository_SaveAndLatest(t *testing.T) {
	repo := setupSnapshotDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if _, err := repo.Save(ctx, "unexpected_disconnect", snapshotAt(t, base)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	newest, err := repo.Save(ctx, "unexpected_disconnect", snapshotAt(t, base.Add(500*time.Millisecond)))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.ID != newest {
		t.Errorf("Latest().ID = %q, want %q", got.ID, newest)
	}
	if got.EntityCount != 1 {
		t.Errorf("EntityCount = %d, want 1", got.EntityCount)
	}
	if !got.ExportedAt.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("ExportedAt = %v", got.ExportedAt)
	}
	bk, ok := got.Snapshot.Get(KindBlock, "bk1")
	if !ok || bk.Text("locid") != "lc1" {
		t.Errorf("stored bk1 = %+v, ok=%v", bk, ok)
	}
}

func TestSnapshotRepository_LatestEmpty(t *testing.T) {
	repo := setupSnapshotDB(t)
	if _, err := repo.Latest(context.Background()); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Latest() error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSnapshotRepository_SaveRequiresReason(t *testing.T) {
	repo := setupSnapshotDB(t)
	if _, err := repo.Save(context.Background(), "", NewModel().Export()); err == nil {
		t.Error("Save() with empty reason should fail")
	}
}

func TestSnapshotRepository_ListAndPrune(t *testing.T) {
	repo := setupSnapshotDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if _, err := repo.Save(ctx, "test", snapshotAt(t, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save(%d) error = %v", i, err)
		}
	}

	list, err := repo.List(ctx, 3)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List(3) returned %d", len(list))
	}
	if !list[0].ExportedAt.After(list[1].ExportedAt) {
		t.Error("List() must be newest first")
	}

	deleted, err := repo.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 3 {
		t.Errorf("Prune(2) deleted %d, want 3", deleted)
	}

	remaining, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("remaining = %d, want 2", len(remaining))
	}
	if !remaining[0].ExportedAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("newest kept = %v", remaining[0].ExportedAt)
	}

	if n, err := repo.Prune(ctx, 0); err != nil || n != 0 {
		t.Errorf("Prune(0) = (%d, %v), want no-op", n, err)
	}
	if _, err := repo.Prune(ctx, -1); err == nil {
		t.Error("Prune(-1) should fail")
	}
}
