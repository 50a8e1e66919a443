package database

import (
	"context"
	"embed"
	"testing"
	"testing/fstest"
	"time"
)

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

var testSource = Source{FS: testMigrationsFS, Dir: "testdata"}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, testSource); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_sightings") {
		t.Fatal("table test_sightings not created")
	}

	// The second migration added a defaulted column.
	if _, err := db.ExecContext(ctx, "INSERT INTO test_sightings (loco_id, block_id) VALUES ('lc_1', 'bk_1')"); err != nil {
		t.Fatalf("INSERT error = %v", err)
	}
	var speed int
	if err := db.QueryRowContext(ctx, "SELECT speed FROM test_sightings").Scan(&speed); err != nil {
		t.Fatalf("SELECT speed error = %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx, testSource)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2 and 0", len(applied), len(pending))
	}

	if err := db.Migrate(ctx, testSource); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testSource); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Two steps back undo both migrations, newest first.
	for i := 0; i < 2; i++ {
		if err := db.MigrateDown(ctx, testSource); err != nil {
			t.Fatalf("MigrateDown() #%d error = %v", i+1, err)
		}
	}
	if tableExists(t, db, "test_sightings") {
		t.Error("table test_sightings should have been dropped")
	}

	applied, _, err := db.MigrationStatus(ctx, testSource)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected 0 applied migrations after rollback, got %d", len(applied))
	}

	if err := db.MigrateDown(ctx, testSource); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrate_NoSource(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background(), Source{}); err != nil {
		t.Fatalf("Migrate() with no source error = %v", err)
	}
}

func TestMigrate_FailureStopsAtBrokenMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	src := Source{FS: fstest.MapFS{
		"20260101_000000_first.up.sql":  {Data: []byte("CREATE TABLE first (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE oops (")},
		"20260103_000000_third.up.sql":  {Data: []byte("CREATE TABLE third (id INTEGER);")},
	}}

	if err := db.Migrate(ctx, src); err == nil {
		t.Fatal("Migrate() expected error for broken migration")
	}
	if !tableExists(t, db, "first") {
		t.Error("migration before the failure should stay committed")
	}
	if tableExists(t, db, "third") {
		t.Error("migration after the failure should not run")
	}

	_, pending, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantIsUp    bool
		wantOk      bool
	}{
		{"20260118_120000_create_runs.up.sql", "20260118_120000", "create_runs", true, true},
		{"20260118_120000_create_runs.down.sql", "20260118_120000", "create_runs", false, true},
		{"20260118_120000.up.sql", "20260118_120000", "", true, true},
		{"readme.txt", "", "", false, false},
		{"20260118_120000_create_runs.sql", "", "", false, false},
		{"invalid.up.sql", "", "", false, false},
		{"2026_12_x.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || isUp != tt.wantIsUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, name, isUp, tt.wantVersion, tt.wantName, tt.wantIsUp)
			}
		})
	}
}
