package core

import (
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/multierr"

	"github.com/caldera-rt/runner/internal/wire"
)

// ErrComponentUninitialized is a lifecycle invariant violation (§7):
// an action required an Implementation that is not present.
var ErrComponentUninitialized = fmt.Errorf("runner: component has no implementation")

// Component is a hosted process under the runner's control (§3).
// GlobalState owns every Component exclusively from the control thread;
// nothing here is safe for concurrent mutation.
type Component struct {
	ID             ComponentID
	LaunchPath     string
	Core           int
	Run            bool
	Remove         bool
	Times          []int64 // per-invocation start timestamps, microseconds since epoch
	Implementation *Implementation
}

// Implementation exists only between the background worker's spawn step
// and the corresponding kill step (§3): it owns the child's PID,
// process handle, and its two sockets.
type Implementation struct {
	PID       int
	Cmd       *exec.Cmd
	DataSock  *os.File
	StateSock *os.File
}

// GlobalState is the runner's single-writer world (§3). Exclusive to
// the control thread; never wrapped in a mutex — single-writer discipline
// is enforced by only ever being reachable from the control loop.
type GlobalState struct {
	Components map[ComponentID]*Component
	Routes     map[RouteEndpoint]RouteEndpoint
	StateSyncs map[StateSyncID]*StateSync
	Schedule   Schedule
	Inbox      map[uint32][]wire.Message
	Done       bool
	FrameIndex int
}

func NewGlobalState() *GlobalState {
	return &GlobalState{
		Components: make(map[ComponentID]*Component),
		Routes:     make(map[RouteEndpoint]RouteEndpoint),
		StateSyncs: make(map[StateSyncID]*StateSync),
		Inbox:      make(map[uint32][]wire.Message),
	}
}

// StartComponent implements the `StartComponent` blocking action (§4.4):
// requires an Implementation to already be present.
func (g *GlobalState) StartComponent(cid ComponentID) error {
	c, ok := g.Components[cid]
	if !ok {
		return fmt.Errorf("start component %s: %w", cid, ErrComponentNotFound)
	}
	if c.Implementation == nil {
		return fmt.Errorf("start component %s: %w", cid, ErrComponentUninitialized)
	}
	c.Run = true
	return nil
}

// StopComponent implements the `StopComponent` blocking action.
func (g *GlobalState) StopComponent(cid ComponentID) error {
	c, ok := g.Components[cid]
	if !ok {
		return fmt.Errorf("stop component %s: %w", cid, ErrComponentNotFound)
	}
	c.Run = false
	return nil
}

// AddRoute implements `AddRoute`: routes are a total function on sources,
// so a second insert simply overwrites the prior target.
func (g *GlobalState) AddRoute(src, tgt RouteEndpoint) {
	g.Routes[src] = tgt
}

// RemoveRoute implements `RemoveRoute`.
func (g *GlobalState) RemoveRoute(src RouteEndpoint) {
	delete(g.Routes, src)
}

// SetSchedule implements `SetSchedule`: validates that every referenced
// component exists and has an Implementation before replacing the
// schedule, and resets the frame index (§4.1, §9 open question).
func (g *GlobalState) SetSchedule(sched Schedule) error {
	var errs error
	for _, major := range sched.MajorFrames {
		for _, minor := range major.Minors {
			c, ok := g.Components[minor.Component]
			if !ok {
				errs = multierr.Append(errs, fmt.Errorf("set schedule: %w: %s", ErrComponentNotFound, minor.Component))
				continue
			}
			if c.Implementation == nil {
				errs = multierr.Append(errs, fmt.Errorf("set schedule: component %s: %w", minor.Component, ErrComponentUninitialized))
			}
		}
	}
	if errs != nil {
		return errs
	}
	g.Schedule = sched
	g.FrameIndex = 0
	return nil
}

// AddStateSync implements `AddStateSync`.
func (g *GlobalState) AddStateSync(id StateSyncID, source, target ComponentID) {
	g.StateSyncs[id] = &StateSync{ID: id, Source: source, Target: target, Status: StateSyncCreated}
}

// RemoveStateSync implements `RemoveStateSync`.
func (g *GlobalState) RemoveStateSync(id StateSyncID) {
	delete(g.StateSyncs, id)
}

// AddComponentSkeleton inserts a Component with no Implementation and
// run=false (§4.4.1, AddComponent/Started).
func (g *GlobalState) AddComponentSkeleton(cid ComponentID, launchPath string, core int) {
	g.Components[cid] = &Component{ID: cid, LaunchPath: launchPath, Core: core}
}

// MarkForRemoval implements RemoveComponent/Started: remove=true, run=false.
func (g *GlobalState) MarkForRemoval(cid ComponentID) error {
	c, ok := g.Components[cid]
	if !ok {
		return fmt.Errorf("mark for removal %s: %w", cid, ErrComponentNotFound)
	}
	c.Remove = true
	c.Run = false
	return nil
}

// TakeImplementation detaches and returns a Component's Implementation,
// leaving it nil (§4.4.1 RemoveComponent/Running: "take the
// Component's current Implementation, leaving None"). This is the move
// that guarantees no two-writer aliasing when handing off to the worker.
func (g *GlobalState) TakeImplementation(cid ComponentID) (*Implementation, error) {
	c, ok := g.Components[cid]
	if !ok {
		return nil, fmt.Errorf("take implementation %s: %w", cid, ErrComponentNotFound)
	}
	impl := c.Implementation
	c.Implementation = nil
	return impl, nil
}

// AttachImplementation completes AddComponent/Stopped: the worker has
// finished spawning the process and the control thread installs the
// result.
func (g *GlobalState) AttachImplementation(cid ComponentID, impl *Implementation) error {
	c, ok := g.Components[cid]
	if !ok {
		return fmt.Errorf("attach implementation %s: %w", cid, ErrComponentNotFound)
	}
	c.Implementation = impl
	return nil
}

// DeleteComponent removes a Component outright (RemoveComponent/Stopped,
// after its Implementation has already been taken and killed).
func (g *GlobalState) DeleteComponent(cid ComponentID) {
	delete(g.Components, cid)
}

// CheckInvariants verifies the structural invariants of §8 that are
// cheap to check directly against GlobalState (the idempotence properties
// are exercised by this package's tests of the individual mutations, and
// per-channel FIFO ordering by internal/component's tests, since they are
// properties of a sequence of operations rather than of a single snapshot).
func (g *GlobalState) CheckInvariants() error {
	var errs error
	scheduled := make(map[ComponentID]bool)
	for _, major := range g.Schedule.MajorFrames {
		for _, minor := range major.Minors {
			scheduled[minor.Component] = true
		}
	}
	for cid := range scheduled {
		c, ok := g.Components[cid]
		if !ok || c.Implementation == nil {
			errs = multierr.Append(errs, fmt.Errorf("invariant: scheduled component %s has no implementation", cid))
		}
	}
	for cid, c := range g.Components {
		if c.Run && c.Implementation == nil {
			errs = multierr.Append(errs, fmt.Errorf("invariant: run=true component %s has no implementation", cid))
		}
		if cid != c.ID {
			errs = multierr.Append(errs, fmt.Errorf("invariant: component map key %s does not match Component.ID %s", cid, c.ID))
		}
	}
	if len(g.Schedule.MajorFrames) > 0 && (g.FrameIndex < 0 || g.FrameIndex >= len(g.Schedule.MajorFrames)) {
		errs = multierr.Append(errs, fmt.Errorf("invariant: frame index %d out of range [0,%d)", g.FrameIndex, len(g.Schedule.MajorFrames)))
	}
	return errs
}
