package core

import (
	"errors"
	"testing"
)

func TestStartComponentRequiresImplementation(t *testing.T) {
	g := NewGlobalState()
	cid := NewID()
	g.AddComponentSkeleton(cid, "/bin/true", 0)

	if err := g.StartComponent(cid); !errors.Is(err, ErrComponentUninitialized) {
		t.Fatalf("got %v, want ErrComponentUninitialized", err)
	}

	g.Components[cid].Implementation = &Implementation{PID: 1}
	if err := g.StartComponent(cid); err != nil {
		t.Fatalf("StartComponent: %v", err)
	}
	if !g.Components[cid].Run {
		t.Fatal("expected run=true")
	}
}

func TestStartComponentUnknown(t *testing.T) {
	g := NewGlobalState()
	if err := g.StartComponent(NewID()); !errors.Is(err, ErrComponentNotFound) {
		t.Fatalf("got %v, want ErrComponentNotFound", err)
	}
}

func TestAddRouteThenRemoveRouteLeavesRoutesUnchanged(t *testing.T) {
	g := NewGlobalState()
	src := RouteEndpoint{Endpoint: ComponentEndpoint(NewID()), ChannelID: 1}
	tgt := RouteEndpoint{Endpoint: ComponentEndpoint(NewID()), ChannelID: 2}

	before := len(g.Routes)
	g.AddRoute(src, tgt)
	g.RemoveRoute(src)
	if len(g.Routes) != before {
		t.Fatalf("routes not restored: %v", g.Routes)
	}
}

func TestAddStateSyncThenRemoveCancels(t *testing.T) {
	g := NewGlobalState()
	id := NewID()
	g.AddStateSync(id, NewID(), NewID())
	g.RemoveStateSync(id)
	if _, ok := g.StateSyncs[id]; ok {
		t.Fatal("state sync should be absent after remove")
	}
}

func TestSetScheduleTwiceOverwritesWithNoResidue(t *testing.T) {
	g := NewGlobalState()
	cidA := NewID()
	cidB := NewID()
	g.AddComponentSkeleton(cidA, "/bin/a", 1)
	g.AddComponentSkeleton(cidB, "/bin/b", 2)
	g.Components[cidA].Implementation = &Implementation{PID: 1}
	g.Components[cidB].Implementation = &Implementation{PID: 2}

	schedA := Schedule{Period: 1000, MajorFrames: []MajorFrame{{Minors: []MinorFrame{{Component: cidA, Deadline: 500}}}}}
	if err := g.SetSchedule(schedA); err != nil {
		t.Fatalf("SetSchedule A: %v", err)
	}
	g.FrameIndex = 0

	schedB := Schedule{Period: 2000, MajorFrames: []MajorFrame{
		{Minors: []MinorFrame{{Component: cidB, Deadline: 700}}},
		{Minors: []MinorFrame{{Component: cidA, Deadline: 700}}},
	}}
	if err := g.SetSchedule(schedB); err != nil {
		t.Fatalf("SetSchedule B: %v", err)
	}

	if len(g.Schedule.MajorFrames) != 2 {
		t.Fatalf("schedule B not applied: %+v", g.Schedule)
	}
	if g.FrameIndex != 0 {
		t.Fatalf("frame index not reset: %d", g.FrameIndex)
	}
}

func TestSetScheduleRejectsMissingComponent(t *testing.T) {
	g := NewGlobalState()
	sched := Schedule{Period: 1000, MajorFrames: []MajorFrame{{Minors: []MinorFrame{{Component: NewID(), Deadline: 500}}}}}
	if err := g.SetSchedule(sched); err == nil {
		t.Fatal("expected error for unknown component in schedule")
	}
	if len(g.Schedule.MajorFrames) != 0 {
		t.Fatal("invalid schedule must not be applied")
	}
}

func TestCheckInvariantsCatchesRunWithoutImplementation(t *testing.T) {
	g := NewGlobalState()
	cid := NewID()
	g.AddComponentSkeleton(cid, "/bin/a", 0)
	g.Components[cid].Run = true // illegal: no Implementation

	if err := g.CheckInvariants(); err == nil {
		t.Fatal("expected invariant violation")
	}
}

func TestCheckInvariantsPassesOnEmptyState(t *testing.T) {
	g := NewGlobalState()
	if err := g.CheckInvariants(); err != nil {
		t.Fatalf("unexpected error on empty state: %v", err)
	}
}

func TestTakeImplementationMovesOwnership(t *testing.T) {
	g := NewGlobalState()
	cid := NewID()
	g.AddComponentSkeleton(cid, "/bin/a", 0)
	g.Components[cid].Implementation = &Implementation{PID: 42}

	impl, err := g.TakeImplementation(cid)
	if err != nil {
		t.Fatalf("TakeImplementation: %v", err)
	}
	if impl.PID != 42 {
		t.Fatalf("got pid %d, want 42", impl.PID)
	}
	if g.Components[cid].Implementation != nil {
		t.Fatal("implementation should be nil after take")
	}
}
