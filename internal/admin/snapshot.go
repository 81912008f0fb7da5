// Package admin implements a read-only JSON-over-UDS status endpoint
// (supplementing §6: the control surface itself is unaffected by this
// package; it only observes). Accept-loop shape follows a plain
// UDS server: accept, write one JSON status snapshot, close — reduced
// from a request/response protocol since there is nothing here for a
// caller to command.
package admin

import (
	"github.com/caldera-rt/runner/internal/core"
	"go.uber.org/atomic"
)

// ComponentStatus is one hosted component's status line in a snapshot.
type ComponentStatus struct {
	ID     string `json:"id"`
	Run    bool   `json:"run"`
	Remove bool   `json:"remove"`
	PID    int    `json:"pid,omitempty"`
}

// StateSyncStatus is one configured state sync's status line.
type StateSyncStatus struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Status string `json:"status"`
}

// Snapshot is the published view of GlobalState the admin endpoint
// serves. It is a plain value copied out of the control thread's world
// once per period; nothing here aliases live GlobalState memory.
type Snapshot struct {
	FrameIndex   int               `json:"frame_index"`
	Period       int64             `json:"period_us"`
	Components   []ComponentStatus `json:"components"`
	RouteCount   int               `json:"route_count"`
	StateSyncs   []StateSyncStatus `json:"state_syncs"`
	WorkerBusy   bool              `json:"worker_busy"`
	OverrunTotal int               `json:"overrun_total"`
	SampleUnixUS int64             `json:"sample_unix_us"`
}

// Publisher hands a Snapshot from the control thread to the admin
// server's accept-loop goroutine without sharing GlobalState itself.
// Uses go.uber.org/atomic.Value so Publish (control thread) and Load
// (admin goroutine) never contend on a mutex the control thread would
// have to take.
type Publisher struct {
	value atomic.Value
}

// NewPublisher returns a Publisher seeded with an empty Snapshot.
func NewPublisher() *Publisher {
	p := &Publisher{}
	p.value.Store(Snapshot{})
	return p
}

// Publish replaces the current snapshot. Called once per period from the
// control thread; never blocks.
func (p *Publisher) Publish(s Snapshot) {
	p.value.Store(s)
}

// Load returns the most recently published snapshot.
func (p *Publisher) Load() Snapshot {
	v := p.value.Load()
	s, ok := v.(Snapshot)
	if !ok {
		return Snapshot{}
	}
	return s
}

// SnapshotFrom builds a Snapshot from the live GlobalState. Must only be
// called from the control thread (GlobalState has no internal locking).
func SnapshotFrom(gs *core.GlobalState, workerBusy bool, overrunTotal int, sampleUnixUS int64) Snapshot {
	components := make([]ComponentStatus, 0, len(gs.Components))
	for id, c := range gs.Components {
		cs := ComponentStatus{ID: id.String(), Run: c.Run, Remove: c.Remove}
		if c.Implementation != nil {
			cs.PID = c.Implementation.PID
		}
		components = append(components, cs)
	}

	syncs := make([]StateSyncStatus, 0, len(gs.StateSyncs))
	for id, sy := range gs.StateSyncs {
		syncs = append(syncs, StateSyncStatus{
			ID:     id.String(),
			Source: sy.Source.String(),
			Target: sy.Target.String(),
			Status: sy.Status.String(),
		})
	}

	return Snapshot{
		FrameIndex:   gs.FrameIndex,
		Period:       int64(gs.Schedule.Period),
		Components:   components,
		RouteCount:   len(gs.Routes),
		StateSyncs:   syncs,
		WorkerBusy:   workerBusy,
		OverrunTotal: overrunTotal,
		SampleUnixUS: sampleUnixUS,
	}
}
