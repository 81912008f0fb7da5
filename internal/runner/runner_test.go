package runner

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caldera-rt/runner/internal/config"
	"github.com/caldera-rt/runner/internal/core"
	"github.com/caldera-rt/runner/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.RunnerConfig {
	t.Helper()
	dir := t.TempDir()
	return &config.RunnerConfig{
		Node:    config.NodeConfig{Hostname: "test"},
		Network: config.NetworkConfig{UDPListen: "127.0.0.1:0"},
		Scheduling: config.SchedulingConfig{
			ControlThreadCore:     0,
			ControlThreadPriority: 1,
			ComponentPriority:     1,
			CommAttempts:          5,
		},
		StateSync: config.StateSyncConfig{Attempts: 5, CapBytes: 1024},
		Components: config.ComponentsConfig{
			ConfigDir:        dir,
			SpawnGracePeriod: "1ms",
		},
		Telemetry: config.TelemetryConfig{Path: filepath.Join(dir, "times.csv")},
	}
}

func TestNewWiresEveryService(t *testing.T) {
	r, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.udp.Close()

	if r.scheduler == nil || r.comm == nil || r.statesync == nil || r.management == nil || r.worker == nil {
		t.Fatal("expected every service to be constructed")
	}
}

func TestRunSingleIterationWhenAlreadyDone(t *testing.T) {
	r, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.gs.Done = true

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Done was already set")
	}
}

func TestRunPropagatesFatalManagementError(t *testing.T) {
	cfg := testConfig(t)
	r, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A blocking start-component naming a component that was never added
	// is a lifecycle invariant violation once management reaches Running.
	tasks := "tasks:\n" +
		"  - id: 11111111-1111-1111-1111-111111111111\n" +
		"    actions:\n" +
		"      blocking:\n" +
		"        - id: 22222222-2222-2222-2222-222222222222\n" +
		"          data:\n" +
		"            start-component: { component-id: 33333333-3333-3333-3333-333333333333 }\n"
	if err := os.WriteFile(filepath.Join(cfg.Components.ConfigDir, "tasks.yaml"), []byte(tasks), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	r.gs.Inbox[1] = []wire.Message{{ChannelID: 1, Data: []byte("tasks.yaml")}}

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		var fe *core.FatalError
		if !errors.As(err, &fe) {
			t.Fatalf("expected *core.FatalError, got %T: %v", err, err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after a fatal management error")
	}
}

func TestCurrentPeriodDefaultsWhenNoSchedule(t *testing.T) {
	r, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.udp.Close()

	if got := r.currentPeriod(); got != core.DurationUS(1000) {
		t.Fatalf("got %v, want 1000us default", got)
	}

	r.gs.Schedule.Period = 5000
	if got := r.currentPeriod(); got != core.DurationUS(5000) {
		t.Fatalf("got %v, want 5000us from schedule", got)
	}
}

func TestComponentStatusValueReflectsLifecycle(t *testing.T) {
	uninit := &core.Component{}
	if got := componentStatusValue(uninit); got != float64(0) {
		t.Fatalf("uninitialized: got %v, want 0", got)
	}

	stopped := &core.Component{Implementation: &core.Implementation{PID: 1}}
	if got := componentStatusValue(stopped); got != float64(1) {
		t.Fatalf("stopped: got %v, want 1", got)
	}

	running := &core.Component{Implementation: &core.Implementation{PID: 1}, Run: true}
	if got := componentStatusValue(running); got != float64(2) {
		t.Fatalf("running: got %v, want 2", got)
	}
}
