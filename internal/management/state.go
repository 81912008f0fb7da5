// Package management implements the reconfiguration state machine (spec
// §4.4): Idle/Waiting/Loading/Running at the top level, Blocking actions
// applied synchronously within one period, and NonBlocking actions
// stepped one transition per period against the background worker.
package management

import (
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/caldera-rt/runner/internal/config"
	"github.com/caldera-rt/runner/internal/core"
	"github.com/caldera-rt/runner/internal/worker"
)

type topState int

const (
	stateIdle topState = iota
	stateWaiting
	stateLoading
	stateRunning
)

// ActionState is a NonBlocking action's per-instance lifecycle (spec
// §4.4.1).
type ActionState int

const (
	ActionStarted ActionState = iota
	ActionRunning
	ActionStopped
	ActionCompleted
)

// Service drives the reconfiguration state machine. One instance per
// runner process; RunPeriod is called once per period by the control
// loop, after the communication and state services.
type Service struct {
	logger *slog.Logger
	worker *worker.Worker

	state       topState
	waitingPath string

	tasks        []config.Task
	cursor       int
	blocked      bool
	actionStatus map[core.ActionID]ActionState
}

func New(logger *slog.Logger, w *worker.Worker) *Service {
	return &Service{logger: logger, worker: w, state: stateIdle}
}

// RunPeriod steps the state machine by exactly one period. A non-nil
// error is always a lifecycle invariant violation (§7): the caller
// is expected to abort the runner.
func (s *Service) RunPeriod(gs *core.GlobalState) error {
	switch s.state {
	case stateIdle:
		s.stepIdle(gs)
		return nil
	case stateWaiting:
		s.stepWaiting()
		return nil
	case stateLoading:
		s.stepLoading()
		return nil
	case stateRunning:
		return s.stepRunning(gs)
	default:
		return nil
	}
}

// stepIdle implements §4.4 Idle: a terminate message on inbox 0
// takes priority over a configuration reload requested on inbox 1.
func (s *Service) stepIdle(gs *core.GlobalState) {
	if msgs := gs.Inbox[0]; len(msgs) > 0 {
		gs.Done = true
		delete(gs.Inbox, 0)
		return
	}
	if msgs := gs.Inbox[1]; len(msgs) > 0 {
		s.waitingPath = string(msgs[0].Data)
		delete(gs.Inbox, 1)
		s.state = stateWaiting
	}
}

// stepWaiting implements §4.4 Waiting: enqueue the load job and
// move on. File I/O is never performed on the control thread.
func (s *Service) stepWaiting() {
	if s.worker.TryEnqueue(worker.Request{Kind: worker.RequestLoadConfiguration, ConfigPath: s.waitingPath}) {
		s.worker.Signal()
		s.state = stateLoading
	}
}

// stepLoading implements §4.4 Loading: try-lock the worker's
// done-configuration slot.
func (s *Service) stepLoading() {
	doc, ok := s.worker.TryTakeConfiguration()
	if !ok {
		return
	}
	if len(doc.Tasks) == 0 {
		s.state = stateIdle
		return
	}
	s.tasks = doc.Tasks
	s.cursor = 0
	s.blocked = false
	s.actionStatus = make(map[core.ActionID]ActionState)
	s.state = stateRunning
}

// stepRunning implements §4.4 Running: dispatch the current task's
// action group by kind.
func (s *Service) stepRunning(gs *core.GlobalState) error {
	if s.cursor >= len(s.tasks) {
		s.state = stateIdle
		return nil
	}
	task := s.tasks[s.cursor]
	if len(task.Actions.Blocking) > 0 {
		return s.stepBlockingGroup(gs, task.Actions.Blocking)
	}
	return s.stepNonBlockingGroup(gs, task.Actions.NonBlocking)
}

// advanceCursor implements "advance the cursor" (§4.4): move to the
// next task with a clean action_status, or return to Idle if this was
// the last task.
func (s *Service) advanceCursor() {
	if s.cursor+1 < len(s.tasks) {
		s.cursor++
		s.actionStatus = make(map[core.ActionID]ActionState)
		s.blocked = false
		return
	}
	s.state = stateIdle
	s.tasks = nil
	s.cursor = 0
	s.blocked = false
}

// stepBlockingGroup applies every Blocking action in the group within
// this period (§4.4). Non-fatal errors are aggregated and logged
// once; the first lifecycle invariant violation is returned so the
// control loop can abort.
func (s *Service) stepBlockingGroup(gs *core.GlobalState, actions []config.BlockingAction) error {
	if s.blocked {
		s.logger.Error("management: blocking group revisited while already blocked (should not happen)")
		return nil
	}

	var errs error
	var fatal error
	for _, action := range actions {
		if err := s.applyBlocking(gs, action); err != nil {
			errs = multierr.Append(errs, err)
			var fe *core.FatalError
			if errors.As(err, &fe) && fatal == nil {
				fatal = err
			}
		}
	}
	if errs != nil {
		s.logger.Error("management: blocking group had errors", "err", errs)
	}
	s.advanceCursor()
	return fatal
}

// applyBlocking implements the blocking-action effect table (§4.4).
func (s *Service) applyBlocking(gs *core.GlobalState, action config.BlockingAction) error {
	switch action.Data.Kind {
	case config.ActionStartComponent:
		cid := action.Data.StartComponent.ComponentID
		if err := gs.StartComponent(cid); err != nil {
			return core.NewFatalError("start-component", err)
		}
		return nil

	case config.ActionStopComponent:
		cid := action.Data.StopComponent.ComponentID
		if err := gs.StopComponent(cid); err != nil {
			return fmt.Errorf("stop-component: %w", err)
		}
		return nil

	case config.ActionAddRoute:
		d := action.Data.AddRoute
		gs.AddRoute(d.Source.ToCore(), d.Target.ToCore())
		return nil

	case config.ActionRemoveRoute:
		gs.RemoveRoute(action.Data.RemoveRoute.Source.ToCore())
		return nil

	case config.ActionSetSchedule:
		sched := action.Data.SetSchedule.ToCore()
		if err := gs.SetSchedule(sched); err != nil {
			return fmt.Errorf("set-schedule: keeping current schedule: %w", err)
		}
		return nil

	case config.ActionAddStateSync:
		d := action.Data.AddStateSync
		srcID, err := endpointComponentID(d.Source)
		if err != nil {
			return core.NewFatalError("add-state-sync", err)
		}
		tgtID, err := endpointComponentID(d.Target)
		if err != nil {
			return core.NewFatalError("add-state-sync", err)
		}
		gs.AddStateSync(d.StateSyncID, srcID, tgtID)
		return nil

	case config.ActionRemoveStateSync:
		gs.RemoveStateSync(action.Data.RemoveStateSync.StateSyncID)
		return nil

	default:
		return fmt.Errorf("management: unknown blocking action kind %q", action.Data.Kind)
	}
}

func endpointComponentID(e config.EndpointSpec) (core.ComponentID, error) {
	endpoint := core.Endpoint(e)
	if endpoint.Kind != core.EndpointComponent {
		return core.NilID, fmt.Errorf("state sync endpoint must be a component, got %s", endpoint.String())
	}
	return endpoint.Component, nil
}
