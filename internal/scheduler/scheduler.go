// Package scheduler implements the per-period minor-frame executor
// (§4.1): for the current major frame, run each due component for
// exactly its deadline under real-time priority, then demote it, never
// waiting for an acknowledgement.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/caldera-rt/runner/internal/core"
	"github.com/caldera-rt/runner/internal/ipc"
)

// Scheduler owns no state of its own beyond its logger and RT priority;
// the frame index it advances lives on core.GlobalState so a SetSchedule
// action can reset it from outside (§9, open question: reset on
// schedule change).
type Scheduler struct {
	logger   *slog.Logger
	priority int
}

// New builds a Scheduler that raises components to real-time FIFO at
// priority for the duration of their minor frame.
func New(logger *slog.Logger, priority int) *Scheduler {
	return &Scheduler{logger: logger, priority: priority}
}

// RunPeriod executes the current major frame and advances the frame
// index, wrapping modulo the frame count. A schedule with zero major
// frames is a no-op (§8 boundary case).
func (s *Scheduler) RunPeriod(gs *core.GlobalState) {
	if len(gs.Schedule.MajorFrames) == 0 {
		return
	}
	frame := gs.Schedule.MajorFrames[gs.FrameIndex]
	for _, minor := range frame.Minors {
		s.runMinor(gs, minor)
	}
	gs.FrameIndex = (gs.FrameIndex + 1) % len(gs.Schedule.MajorFrames)
}

// runMinor executes one (component, deadline) pair (§4.1 contract).
func (s *Scheduler) runMinor(gs *core.GlobalState, minor core.MinorFrame) {
	c, ok := gs.Components[minor.Component]
	if !ok || !c.Run || c.Implementation == nil {
		s.logger.Debug("scheduler: skipping minor frame",
			"component", minor.Component.String(),
			"known", ok)
		return
	}

	pid := c.Implementation.PID
	if err := ipc.SetRealtimeFIFO(pid, s.priority); err != nil {
		s.logger.Error("scheduler: raise to SCHED_FIFO failed",
			"component", minor.Component.String(), "err", err)
	}
	if err := ipc.Resume(pid); err != nil {
		s.logger.Error("scheduler: resume failed",
			"component", minor.Component.String(), "err", err)
		return
	}

	c.Times = append(c.Times, time.Now().UnixMicro())
	time.Sleep(minor.Deadline.Duration())

	if err := ipc.SetIdleClass(pid); err != nil {
		s.logger.Error("scheduler: demote to SCHED_IDLE failed",
			"component", minor.Component.String(), "err", err)
	}
}
