package ipc

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetRealtimeFIFO raises pid to SCHED_FIFO at priority before the scheduler
// resumes it for its minor frame (§4.1: "the running component holds
// the highest real-time priority on its core for the duration of its
// deadline"). priority must be within [1, 99].
func SetRealtimeFIFO(pid int, priority int) error {
	param := &unix.SchedParam{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(pid, unix.SCHED_FIFO, param); err != nil {
		return fmt.Errorf("ipc: SCHED_FIFO pid=%d priority=%d: %w", pid, priority, err)
	}
	return nil
}

// SetIdleClass demotes pid to SCHED_IDLE once its deadline has elapsed
// (§4.1: components that overrun their deadline are demoted, never
// killed).
func SetIdleClass(pid int) error {
	param := &unix.SchedParam{Priority: 0}
	if err := unix.SchedSetscheduler(pid, unix.SCHED_IDLE, param); err != nil {
		return fmt.Errorf("ipc: SCHED_IDLE pid=%d: %w", pid, err)
	}
	return nil
}

// SetAffinity pins pid to a single CPU core (§3: Component.Core).
func SetAffinity(pid int, core int) error {
	var set unix.CPUSet_t
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(pid, &set); err != nil {
		return fmt.Errorf("ipc: set affinity pid=%d core=%d: %w", pid, core, err)
	}
	return nil
}

// Resume sends SIGCONT, handing pid the CPU for its minor frame. Components
// self-suspend with SIGSTOP at the end of each iteration (the component
// contract), so the scheduler only ever needs to resume them, never stop
// them directly.
func Resume(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGCONT); err != nil {
		return fmt.Errorf("ipc: SIGCONT pid=%d: %w", pid, err)
	}
	return nil
}

// Kill terminates pid unconditionally, used only for teardown of a
// component being removed from the configuration, never for a deadline
// miss.
func Kill(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("ipc: SIGKILL pid=%d: %w", pid, err)
	}
	return nil
}
