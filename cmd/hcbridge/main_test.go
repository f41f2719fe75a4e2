package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/hcbridge/internal/infrastructure/config"
	"github.com/nerrad567/hcbridge/internal/infrastructure/database"
	"github.com/nerrad567/hcbridge/internal/infrastructure/logging"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv("HCBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config failure", err)
	}
}

func TestRun_MissingControllerURL(t *testing.T) {
	t.Setenv("HCBRIDGE_CONTROLLER_URL", "")
	t.Setenv("HCBRIDGE_CONFIG", writeConfig(t, `
bridge:
  id: test-bridge
logging:
  level: error
  format: text
  output: stdout
`))

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail without controller.url")
	}
	if !strings.Contains(err.Error(), "controller.url is required") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_ControllerUnreachable(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HCBRIDGE_CONTROLLER_URL", "")
	t.Setenv("HCBRIDGE_CONFIG", writeConfig(t, `
controller:
  url: "http://127.0.0.1:1"
  timeout: 1
database:
  enabled: true
  path: "`+filepath.Join(dir, "test.db")+`"
homekit:
  storage_path: "`+filepath.Join(dir, "hap")+`"
logging:
  level: error
  format: text
  output: stdout
`))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when the controller is unreachable")
	}
	if !strings.Contains(err.Error(), "resolving capabilities") {
		t.Errorf("error = %v, want resolve failure", err)
	}
}

func TestOpenSinks_Database(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Enabled: true, Path: database.MemoryPath},
	}
	log := logging.Discard()

	s, err := openSinks(context.Background(), cfg, log)
	defer s.close(log)
	if err != nil {
		t.Fatalf("openSinks() error: %v", err)
	}
	if s.db == nil || s.store == nil {
		t.Fatal("database sinks not opened")
	}
	if s.mqtt != nil || s.influx != nil {
		t.Error("disabled sinks should stay nil")
	}

	checks := s.checks()
	if len(checks) != 1 || checks["database"] == nil {
		t.Errorf("checks = %v, want database only", checks)
	}
	if err := checks["database"].HealthCheck(context.Background()); err != nil {
		t.Errorf("database health = %v", err)
	}

	cursor, err := s.store.LoadCursor(context.Background())
	if err != nil || cursor != 0 {
		t.Errorf("LoadCursor() = %d, %v", cursor, err)
	}
}

func TestOpenSinks_NoneEnabled(t *testing.T) {
	s, err := openSinks(context.Background(), &config.Config{}, logging.Discard())
	if err != nil {
		t.Fatalf("openSinks() error: %v", err)
	}
	if len(s.checks()) != 0 {
		t.Errorf("checks = %v, want none", s.checks())
	}
	s.close(logging.Discard())
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HCBRIDGE_CONFIG", "")
	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}

	t.Setenv("HCBRIDGE_CONFIG", "/custom/path/config.yaml")
	if path := getConfigPath(); path != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q", path)
	}
}
