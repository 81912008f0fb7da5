package scheduler

import (
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/caldera-rt/runner/internal/core"
)

func newTestScheduler() *Scheduler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), 10)
}

func TestRunPeriodSkipsMissingComponent(t *testing.T) {
	gs := core.NewGlobalState()
	gs.Schedule = core.Schedule{
		Period: 1000,
		MajorFrames: []core.MajorFrame{
			{Minors: []core.MinorFrame{{Component: core.NewID(), Deadline: 100}}},
		},
	}
	s := newTestScheduler()
	before := time.Now()
	s.RunPeriod(gs)
	if time.Since(before) > 50*time.Millisecond {
		t.Fatal("skip path should not sleep for the deadline")
	}
}

func TestRunPeriodSkipsStoppedComponent(t *testing.T) {
	gs := core.NewGlobalState()
	cid := core.NewID()
	gs.AddComponentSkeleton(cid, "/bin/true", 0)
	gs.Components[cid].Implementation = &core.Implementation{PID: 1}
	gs.Components[cid].Run = false
	gs.Schedule = core.Schedule{
		Period:      1000,
		MajorFrames: []core.MajorFrame{{Minors: []core.MinorFrame{{Component: cid, Deadline: 50 * 1000}}}},
	}

	s := newTestScheduler()
	before := time.Now()
	s.RunPeriod(gs)
	if time.Since(before) > 20*time.Millisecond {
		t.Fatal("stopped component must not consume its deadline")
	}
}

func TestRunPeriodAdvancesAndWrapsFrameIndex(t *testing.T) {
	gs := core.NewGlobalState()
	gs.Schedule = core.Schedule{
		Period: 1000,
		MajorFrames: []core.MajorFrame{
			{Minors: []core.MinorFrame{{Component: core.NewID(), Deadline: 10}}},
			{Minors: []core.MinorFrame{{Component: core.NewID(), Deadline: 10}}},
		},
	}
	s := newTestScheduler()

	s.RunPeriod(gs)
	if gs.FrameIndex != 1 {
		t.Fatalf("got frame index %d, want 1", gs.FrameIndex)
	}
	s.RunPeriod(gs)
	if gs.FrameIndex != 0 {
		t.Fatalf("got frame index %d, want 0 (wrapped)", gs.FrameIndex)
	}
}

func TestRunPeriodNoopOnEmptySchedule(t *testing.T) {
	gs := core.NewGlobalState()
	s := newTestScheduler()
	s.RunPeriod(gs) // must not panic or index out of range
}

func TestRunMinorSleepsForDeadline(t *testing.T) {
	cmd := exec.Command("sleep", "2")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn helper process: %v", err)
	}
	defer cmd.Process.Kill()

	gs := core.NewGlobalState()
	cid := core.NewID()
	gs.AddComponentSkeleton(cid, "/bin/sleep", 0)
	gs.Components[cid].Run = true
	gs.Components[cid].Implementation = &core.Implementation{PID: cmd.Process.Pid}
	gs.Schedule = core.Schedule{
		Period:      50000,
		MajorFrames: []core.MajorFrame{{Minors: []core.MinorFrame{{Component: cid, Deadline: 20000}}}},
	}

	s := newTestScheduler()
	before := time.Now()
	s.RunPeriod(gs)
	elapsed := time.Since(before)
	if elapsed < 20*time.Millisecond {
		t.Fatalf("expected to sleep ~20ms for the deadline, got %v", elapsed)
	}
	if len(gs.Components[cid].Times) != 1 {
		t.Fatalf("expected one invocation timestamp recorded, got %d", len(gs.Components[cid].Times))
	}
}
