// Package component is the contract helper library a hosted component
// process links against (§4.6/§6): adopt fd 10 (messages) and fd 11
// (state), self-suspend with SIGSTOP after each work step, and exchange
// typed data with the runner via the same length-prefixed framing the
// control thread uses. Grounded on original_source/crates/elafry/src/lib.rs
// and its services/communication.rs, services/state.rs: run() there is
// "suspend, drain sockets, load state, call the component, save state,
// loop", which this package reproduces as Run.
package component

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/caldera-rt/runner/internal/ipc"
)

const (
	dataFd  = 10
	stateFd = 11
)

// Component is the interface a hosted process implements (§4.6).
type Component interface {
	// Init runs once before the first iteration.
	Init(services *Services)
	// Run executes one work step.
	Run(services *Services)
	// LoadState applies an externally supplied state snapshot (e.g. from
	// a migration StateSync); data is whatever a prior SaveState call
	// returned, possibly from a different process.
	LoadState(data []byte)
	// SaveState returns the current state snapshot to publish.
	SaveState() []byte
	// ResetState initializes state from scratch, called once at startup.
	ResetState()
}

// Services is what a Component's Run method uses to exchange messages
// and state with the rest of the system.
type Services struct {
	Comm  *CommManager
	State *StateManager
}

// Run adopts fd 10/11, initializes the component, and loops forever:
// self-suspend, resume, drain sockets, run one step, publish state.
// It never returns under normal operation; the runner's scheduler owns
// the process's lifetime.
func Run(c Component, logger *slog.Logger) error {
	dataFile := os.NewFile(uintptr(dataFd), "data")
	stateFile := os.NewFile(uintptr(stateFd), "state")
	if dataFile == nil || stateFile == nil {
		return fmt.Errorf("component: fd 10/11 not open (not launched under the runner?)")
	}

	if err := ipc.SetNonblocking(dataFd); err != nil {
		return fmt.Errorf("component: set data socket nonblocking: %w", err)
	}
	if err := ipc.SetNonblocking(stateFd); err != nil {
		return fmt.Errorf("component: set state socket nonblocking: %w", err)
	}

	services := &Services{
		Comm:  newCommManager(dataFd),
		State: newStateManager(stateFd),
	}

	c.ResetState()
	services.State.SetData(c.SaveState())
	c.Init(services)

	logger.Info("component started")

	for {
		if err := suspendSelf(); err != nil {
			return fmt.Errorf("component: suspend: %w", err)
		}

		services.State.Run()
		services.Comm.Run()

		if data, ok := services.State.GetData(); ok {
			c.LoadState(data)
		}
		c.Run(services)
		services.State.SetData(c.SaveState())
	}
}

func suspendSelf() error {
	pid := os.Getpid()
	return syscall.Kill(pid, syscall.SIGSTOP)
}
