package management

import (
	"errors"
	"fmt"

	"github.com/caldera-rt/runner/internal/config"
	"github.com/caldera-rt/runner/internal/core"
	"github.com/caldera-rt/runner/internal/worker"
)

// stepNonBlockingGroup steps every action in the group by one transition
// (§4.4.1). The group only advances to the next task once every
// action has reached Completed.
func (s *Service) stepNonBlockingGroup(gs *core.GlobalState, actions []config.NonBlockingAction) error {
	if !s.blocked {
		for _, a := range actions {
			s.actionStatus[a.ID] = ActionStarted
		}
		s.blocked = true
	}

	allCompleted := true
	var fatal error
	for _, a := range actions {
		cur := s.actionStatus[a.ID]
		if cur == ActionCompleted {
			continue
		}
		next, err := s.stepNonBlockingAction(gs, a, cur)
		if err != nil {
			var fe *core.FatalError
			if errors.As(err, &fe) && fatal == nil {
				fatal = err
			}
			s.logger.Error("management: non-blocking action error", "action", a.ID.String(), "err", err)
		}
		s.actionStatus[a.ID] = next
		if next != ActionCompleted {
			allCompleted = false
		}
	}

	if fatal != nil {
		return fatal
	}
	if allCompleted {
		s.blocked = false
		s.advanceCursor()
	}
	return nil
}

// stepNonBlockingAction advances a single action by one transition,
// dispatching on its kind (§4.4.1: AddComponent, RemoveComponent,
// WaitStateSync).
func (s *Service) stepNonBlockingAction(gs *core.GlobalState, a config.NonBlockingAction, cur ActionState) (ActionState, error) {
	switch a.Data.Kind {
	case config.ActionAddComponent:
		return s.stepAddComponent(gs, a.Data.AddComponent, cur)
	case config.ActionRemoveComponent:
		return s.stepRemoveComponent(gs, a.Data.RemoveComponent, cur)
	case config.ActionWaitStateSync:
		return s.stepWaitStateSync(gs, a.Data.WaitStateSync, cur)
	default:
		return cur, fmt.Errorf("management: unknown non-blocking action kind %q", a.Data.Kind)
	}
}

// stepAddComponent implements §4.4.1 AddComponent:
//
//	Started -> insert a Component skeleton, go Running
//	Running -> enqueue the spawn job, go Stopped once accepted
//	Stopped -> try-take the Implementation, attach it, go Completed
func (s *Service) stepAddComponent(gs *core.GlobalState, d *config.AddComponentData, cur ActionState) (ActionState, error) {
	switch cur {
	case ActionStarted:
		gs.AddComponentSkeleton(d.ComponentID, d.Component, d.Core)
		return ActionRunning, nil

	case ActionRunning:
		ok := s.worker.TryEnqueue(worker.Request{
			Kind:        worker.RequestAddComponentImpl,
			ComponentID: d.ComponentID,
			LaunchPath:  d.Component,
			Core:        d.Core,
		})
		if !ok {
			return ActionRunning, nil
		}
		s.worker.Signal()
		return ActionStopped, nil

	case ActionStopped:
		impl, ok := s.worker.TryTakeImplementation(d.ComponentID)
		if !ok {
			return ActionStopped, nil
		}
		if err := gs.AttachImplementation(d.ComponentID, impl); err != nil {
			return ActionStopped, core.NewFatalError("add-component", err)
		}
		return ActionCompleted, nil

	default:
		return cur, nil
	}
}

// stepRemoveComponent implements §4.4.1 RemoveComponent:
//
//	Started -> mark for removal (remove=true, run=false), go Running
//	Running -> take the Implementation, enqueue the kill job, go Stopped
//	Stopped -> try-take removal confirmation, delete the Component, go Completed
func (s *Service) stepRemoveComponent(gs *core.GlobalState, d *config.RemoveComponentData, cur ActionState) (ActionState, error) {
	switch cur {
	case ActionStarted:
		if err := gs.MarkForRemoval(d.ComponentID); err != nil {
			return cur, core.NewFatalError("remove-component", err)
		}
		return ActionRunning, nil

	case ActionRunning:
		impl, err := gs.TakeImplementation(d.ComponentID)
		if err != nil {
			return cur, core.NewFatalError("remove-component", err)
		}
		if impl == nil {
			// Already uninitialized: nothing to kill, skip straight to
			// the bookkeeping that Stopped would otherwise wait for.
			gs.DeleteComponent(d.ComponentID)
			return ActionCompleted, nil
		}
		ok := s.worker.TryEnqueue(worker.Request{
			Kind:           worker.RequestRemoveComponentImpl,
			ComponentID:    d.ComponentID,
			Implementation: impl,
		})
		if !ok {
			// Contention: put the Implementation back and retry next period.
			_ = gs.AttachImplementation(d.ComponentID, impl)
			return cur, nil
		}
		s.worker.Signal()
		return ActionStopped, nil

	case ActionStopped:
		if s.worker.TryTakeRemoved(d.ComponentID) {
			gs.DeleteComponent(d.ComponentID)
			return ActionCompleted, nil
		}
		return cur, nil

	default:
		return cur, nil
	}
}

// stepWaitStateSync implements §4.4.1 WaitStateSync: arms the named
// StateSync and blocks the action group until internal/statesync reports
// it Synced.
func (s *Service) stepWaitStateSync(gs *core.GlobalState, d *config.WaitStateSyncData, cur ActionState) (ActionState, error) {
	sync, ok := gs.StateSyncs[d.StateSyncID]
	if !ok {
		return cur, core.NewFatalError("wait-state-sync", fmt.Errorf("%w: %s", core.ErrStateSyncNotFound, d.StateSyncID))
	}

	switch cur {
	case ActionStarted:
		sync.Status = core.StateSyncStarted
		return ActionRunning, nil

	case ActionRunning:
		if sync.Status == core.StateSyncSynced {
			return ActionCompleted, nil
		}
		return ActionRunning, nil

	default:
		return cur, nil
	}
}
