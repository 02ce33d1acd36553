package system

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julianstephens/fieldcall/internal/cli"
	"github.com/julianstephens/fieldcall/internal/config"
	"github.com/julianstephens/fieldcall/internal/storage/memory"
	"github.com/julianstephens/fieldcall/internal/storage/sqlite"
)

func setupTestInitDB(t *testing.T) (*cli.Context, string, func()) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	store := sqlite.NewStore(dbPath)

	ctx := &cli.Context{
		Store:      store,
		ConfigPath: filepath.Join(tempDir, "config.yaml"),
		Out:        &bytes.Buffer{},
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	}

	return ctx, dbPath, cleanup
}

func TestInitCmd_Success(t *testing.T) {
	ctx, dbPath, cleanup := setupTestInitDB(t)
	defer cleanup()

	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatalf("init command failed: %v", err)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file was not created at %s", dbPath)
	}
	cfg, err := config.Load(ctx.ConfigPath)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Quota.Target != config.Default().Quota.Target {
		t.Errorf("config target = %d", cfg.Quota.Target)
	}
}

func TestInitCmd_Idempotent(t *testing.T) {
	ctx, _, cleanup := setupTestInitDB(t)
	defer cleanup()

	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if err := os.WriteFile(ctx.ConfigPath, []byte("quota:\n  target: 20\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Errorf("second init failed (should be idempotent): %v", err)
	}

	cfg, err := config.Load(ctx.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Quota.Target != 20 {
		t.Errorf("init overwrote an existing config, target = %d", cfg.Quota.Target)
	}
}

func TestInitCmd_ForceDeletesExisting(t *testing.T) {
	ctx, dbPath, cleanup := setupTestInitDB(t)
	defer cleanup()

	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if err := (&InitCmd{Force: true}).Run(ctx); err != nil {
		t.Fatalf("forced init failed: %v", err)
	}
	if !strings.Contains(ctx.Out.(*bytes.Buffer).String(), "Deleted existing database") {
		t.Errorf("output = %q", ctx.Out.(*bytes.Buffer).String())
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database missing after forced init: %v", err)
	}
}

func TestInitCmd_ForceRequiresSQLite(t *testing.T) {
	ctx := &cli.Context{Store: memory.New(), Out: &bytes.Buffer{}}
	if err := (&InitCmd{Force: true}).Run(ctx); err == nil {
		t.Error("expected --force to be rejected for non-SQLite storage")
	}
}

func TestMigrateCmd(t *testing.T) {
	ctx, _, cleanup := setupTestInitDB(t)
	defer cleanup()

	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	out := &bytes.Buffer{}
	ctx.Out = out
	if err := (&MigrateCmd{}).Run(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out.String(), "up to date") {
		t.Errorf("output = %q", out.String())
	}
}

func TestMigrateCmd_MemoryStore(t *testing.T) {
	out := &bytes.Buffer{}
	ctx := &cli.Context{Store: memory.New(), Out: out}
	if err := (&MigrateCmd{}).Run(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out.String(), "Nothing to migrate") {
		t.Errorf("output = %q", out.String())
	}
}
