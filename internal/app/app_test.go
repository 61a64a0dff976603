package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfig = `
logging:
  level: error
  console: true
history:
  driver: sqlite
  path: %HISTORY%
  retention: 24h
managers:
  - name: main
    capacity: 4
    profiling:
      bins: 8
      unit: ms
    async:
      idle_delay: 1ms
    tasks:
      - name: heartbeat
        schedule: 1h
        action: heartbeat
      - name: report
        schedule: 5m
        action: report
      - name: cleanup
        schedule: "0 3 * * *"
        action: prune
      - name: bootstrap
        type: once
        action: snapshot
        enabled: false
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := strings.Replace(testConfig, "%HISTORY%", filepath.Join(dir, "history.db"), 1)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewBuildsConfiguredManagers(t *testing.T) {
	t.Parallel()
	a, err := New(writeTestConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Stop(context.Background()) }()

	if len(a.managers) != 1 {
		t.Fatalf("managers = %d, want 1", len(a.managers))
	}
	mgr := a.managers[0].mgr
	if mgr.Name() != "main" {
		t.Fatalf("manager name = %q", mgr.Name())
	}
	if mgr.Size() != 4 {
		t.Fatalf("tasks = %d, want 4", mgr.Size())
	}
	if a.managers[0].opts.IdleDelay != time.Millisecond {
		t.Fatalf("idle delay = %v", a.managers[0].opts.IdleDelay)
	}

	byName := map[string]bool{}
	for _, task := range mgr.Tasks() {
		byName[task.Name()] = task.IsEnabled()
	}
	if !byName["heartbeat"] || !byName["report"] || !byName["cleanup"] {
		t.Fatalf("enabled map = %v", byName)
	}
	if byName["bootstrap"] {
		t.Fatal("bootstrap should start disabled")
	}
}

func TestNewRejectsUnknownAction(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := `
managers:
  - name: main
    tasks:
      - name: bad
        action: frobnicate
`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	a, err := New(writeTestConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Give the runners a pass or two.
	time.Sleep(20 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
