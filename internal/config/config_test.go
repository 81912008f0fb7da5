package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "runner.yaml")
	content := `
runner:
  log:
    level: debug
    format: text
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Network.UDPListen != "0.0.0.0:5000" {
		t.Fatalf("got udp_listen %q, want default", cfg.Network.UDPListen)
	}
	if cfg.Scheduling.ControlThreadPriority != 99 {
		t.Fatalf("got control thread priority %d, want default 99", cfg.Scheduling.ControlThreadPriority)
	}
	if cfg.StateSync.CapBytes != 64*1024 {
		t.Fatalf("got state sync cap %d, want 64KiB default", cfg.StateSync.CapBytes)
	}
	if cfg.Node.Hostname == "" {
		t.Fatal("expected hostname to be auto-detected")
	}
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "runner.yaml")
	content := `
runner:
  log:
    level: verbose
    format: text
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestLoadRejectsOutOfRangePriority(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "runner.yaml")
	content := `
runner:
  log:
    level: info
    format: json
  scheduling:
    control_thread_priority: 150
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for out-of-range priority")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/runner.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
