package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalagh/plancher-backend/internal/ai"
	"github.com/zalagh/plancher-backend/internal/config"
	"github.com/zalagh/plancher-backend/internal/repo"
)

// testEnv points every writable location at a temp dir.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "plancher.db"))
	t.Setenv("STORAGE_ROOT", dir)
	t.Setenv("SEED_ADMIN_EMAILS", "ops@zalagh.ma")
	t.Setenv("DEFAULT_ADMIN_PASSWORD", "secret")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("RATE_RPS", "0")
	t.Setenv("PORT", "0")
	return dir
}

func TestMigrateCommand_SeedsAdmins(t *testing.T) {
	dir := testEnv(t)

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--env-file", filepath.Join(dir, "missing.env")})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "missing.env") {
		t.Fatalf("explicit missing env file should fail, got %v", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"migrate"})
	if err := root.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := repo.OpenSQLite(filepath.Join(dir, "plancher.db"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closeDB(db)
	a, err := repo.GetAdminByEmail(context.Background(), db, "ops@zalagh.ma")
	if err != nil || a.PasswordHash == "" {
		t.Fatalf("seeded admin: %+v %v", a, err)
	}
}

func TestMigrateCommand_InvalidConfig(t *testing.T) {
	testEnv(t)
	t.Setenv("LOG_LEVEL", "loud")

	root := newRootCmd()
	root.SetArgs([]string{"migrate"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "LOG_LEVEL") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestBuildDeps_AndServer(t *testing.T) {
	testEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.GinMode = "test"

	deps, cleanup, err := buildDeps(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildDeps: %v", err)
	}
	defer cleanup()

	if deps.Limiter != nil {
		t.Fatalf("RATE_RPS=0 should disable the limiter")
	}
	if _, ok := deps.AI.(ai.Unconfigured); !ok {
		t.Fatalf("expected Unconfigured AI without key, got %T", deps.AI)
	}
	if deps.Knowledge == nil || deps.Archive == nil || deps.Tokens == nil {
		t.Fatalf("incomplete deps: %+v", deps)
	}

	srv := newServer(cfg, deps)
	if srv.Addr != ":0" || srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout || srv.MaxHeaderBytes != cfg.MaxHeaderBytes {
		t.Fatalf("server not configured from cfg: %+v", srv)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	testEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.GinMode = "test"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
