package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func migrationsFS(files map[string]string) fstest.MapFS {
	out := fstest.MapFS{}
	for name, body := range files {
		out[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return out
}

func newRunner(t *testing.T, db *sql.DB, files map[string]string) *Runner {
	t.Helper()
	r, err := NewRunner(db, migrationsFS(files), DriverSQLite)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return r
}

func TestNewRunnerRejectsUnknownDriver(t *testing.T) {
	db := setupTestDB(t)
	if _, err := NewRunner(db, migrationsFS(nil), Driver("mysql")); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := NewRunner(nil, migrationsFS(nil), DriverSQLite); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestGetCurrentVersion(t *testing.T) {
	ctx := context.Background()
	runner := newRunner(t, setupTestDB(t), map[string]string{
		"001_test.sql": "CREATE TABLE test (id INTEGER);",
	})

	version, err := runner.GetCurrentVersion(ctx)
	if err != nil {
		t.Fatalf("GetCurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}

	if err := runner.SetVersion(ctx, 5); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}
	version, err = runner.GetCurrentVersion(ctx)
	if err != nil {
		t.Fatalf("GetCurrentVersion failed: %v", err)
	}
	if version != 5 {
		t.Errorf("expected version 5, got %d", version)
	}
}

func TestReadMigrationFilesSorted(t *testing.T) {
	runner := newRunner(t, setupTestDB(t), map[string]string{
		"003_third.sql":  "SELECT 3;",
		"001_first.sql":  "SELECT 1;",
		"002_second.sql": "SELECT 2;",
		"README.md":      "ignored",
	})

	ms, err := runner.ReadMigrationFiles()
	if err != nil {
		t.Fatalf("ReadMigrationFiles failed: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(ms))
	}
	for i, want := range []string{"first", "second", "third"} {
		if ms[i].Version != i+1 || ms[i].Name != want {
			t.Errorf("migration %d = %d/%s, want %d/%s", i, ms[i].Version, ms[i].Name, i+1, want)
		}
	}
}

func TestApplyMigrationsFromScratch(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	runner := newRunner(t, db, map[string]string{
		"001_companies.sql":  "CREATE TABLE companies (id TEXT PRIMARY KEY);",
		"002_activities.sql": "CREATE TABLE activities (id TEXT PRIMARY KEY, company_id TEXT);",
	})

	var logs []string
	applied, err := runner.ApplyMigrations(ctx, func(msg string) { logs = append(logs, msg) })
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if applied != 2 {
		t.Errorf("expected 2 applied, got %d", applied)
	}
	if len(logs) == 0 {
		t.Error("expected progress messages")
	}

	for _, table := range []string{"companies", "activities"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	version, _ := runner.GetCurrentVersion(ctx)
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
}

func TestApplyMigrationsIncremental(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	first := newRunner(t, db, map[string]string{
		"001_init.sql": "CREATE TABLE a (id INTEGER);",
	})
	if _, err := first.ApplyMigrations(ctx, nil); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}

	second := newRunner(t, db, map[string]string{
		"001_init.sql":  "CREATE TABLE a (id INTEGER);",
		"002_extra.sql": "CREATE TABLE b (id INTEGER);",
	})
	applied, err := second.ApplyMigrations(ctx, nil)
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if applied != 1 {
		t.Errorf("expected 1 applied, got %d", applied)
	}

	applied, err = second.ApplyMigrations(ctx, nil)
	if err != nil {
		t.Fatalf("no-op apply failed: %v", err)
	}
	if applied != 0 {
		t.Errorf("expected no-op, got %d applied", applied)
	}
}

func TestMigrationRollbackOnError(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	runner := newRunner(t, db, map[string]string{
		"001_ok.sql":     "CREATE TABLE ok (id INTEGER);",
		"002_broken.sql": "CREATE TABLE broken (id INTEGER; -- syntax error",
	})

	applied, err := runner.ApplyMigrations(ctx, nil)
	if err == nil {
		t.Fatal("expected error from broken migration")
	}
	if applied != 1 {
		t.Errorf("expected 1 applied before failure, got %d", applied)
	}
	version, _ := runner.GetCurrentVersion(ctx)
	if version != 1 {
		t.Errorf("expected version to stay at 1, got %d", version)
	}
}

func TestValidateVersionNewerDatabase(t *testing.T) {
	ctx := context.Background()
	runner := newRunner(t, setupTestDB(t), map[string]string{
		"001_init.sql": "CREATE TABLE a (id INTEGER);",
	})
	if err := runner.SetVersion(ctx, 9); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}

	err := runner.ValidateVersion(ctx)
	if err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("expected newer-schema error, got %v", err)
	}
	if _, err := runner.ApplyMigrations(ctx, nil); err == nil {
		t.Fatal("expected ApplyMigrations to refuse a newer schema")
	}
}

func TestMigrationFilenameValidation(t *testing.T) {
	tests := map[string]map[string]string{
		"missing separator": {"001.sql": "SELECT 1;"},
		"non-numeric":       {"abc_init.sql": "SELECT 1;"},
		"zero version":      {"000_init.sql": "SELECT 1;"},
		"duplicate":         {"001_a.sql": "SELECT 1;", "01_b.sql": "SELECT 2;"},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			runner := newRunner(t, setupTestDB(t), files)
			if _, err := runner.ReadMigrationFiles(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
