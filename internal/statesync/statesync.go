// Package statesync implements the state service (§4.3): drains
// each component's published state snapshot into a transient per-period
// map, then propagates snapshots across configured StateSync bindings.
package statesync

import (
	"errors"
	"log/slog"

	"github.com/caldera-rt/runner/internal/core"
	"github.com/caldera-rt/runner/internal/ipc"
	"github.com/caldera-rt/runner/internal/wire"
)

// DefaultAttempts is K from §4.3 step 2.
const DefaultAttempts = 5

// DefaultCap is the default upper bound on a state frame's length (spec
// §9 open question: "default to a generous value, e.g. 64 KiB").
const DefaultCap = 64 * 1024

// Service holds the per-component state-socket connections; reused
// across periods like internal/comm's Service.
type Service struct {
	logger   *slog.Logger
	attempts int
	cap      int

	readers map[core.ComponentID]*ipc.FrameReader
	writers map[core.ComponentID]*ipc.FrameWriter

	// InputState is the transient per-period map of each component's most
	// recent state snapshot (§4.3). Exported for telemetry/tests;
	// callers must not mutate it between RunPeriod calls.
	InputState map[core.ComponentID][]byte
}

func New(logger *slog.Logger, attempts, cap int) *Service {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Service{
		logger:     logger,
		attempts:   attempts,
		cap:        cap,
		readers:    make(map[core.ComponentID]*ipc.FrameReader),
		writers:    make(map[core.ComponentID]*ipc.FrameWriter),
		InputState: make(map[core.ComponentID][]byte),
	}
}

// RunPeriod executes the three steps of §4.3.
func (s *Service) RunPeriod(gs *core.GlobalState) {
	s.reconcile(gs)
	s.clearInputState()
	s.drainSnapshots(gs)
	s.propagate(gs)
}

func (s *Service) reconcile(gs *core.GlobalState) {
	for cid, c := range gs.Components {
		if c.Implementation == nil {
			continue
		}
		if _, ok := s.readers[cid]; !ok {
			s.readers[cid] = ipc.NewFrameReader(int(c.Implementation.StateSock.Fd()))
			s.writers[cid] = ipc.NewFrameWriter(int(c.Implementation.StateSock.Fd()))
		}
	}
	for cid := range s.readers {
		if c, ok := gs.Components[cid]; !ok || c.Implementation == nil {
			delete(s.readers, cid)
			delete(s.writers, cid)
			delete(s.InputState, cid)
		}
	}
}

func (s *Service) clearInputState() {
	for cid := range s.InputState {
		delete(s.InputState, cid)
	}
}

// drainSnapshots implements step 2: for each component with an
// Implementation, drain up to s.attempts frames, keeping only the most
// recent valid one.
func (s *Service) drainSnapshots(gs *core.GlobalState) {
	for cid, c := range gs.Components {
		if c.Implementation == nil {
			continue
		}
		reader, ok := s.readers[cid]
		if !ok {
			continue
		}
		for i := 0; i < s.attempts; i++ {
			body, err := reader.Next()
			if err != nil {
				if !errors.Is(err, core.ErrWouldBlock) {
					s.logger.Error("statesync: drain failed", "component", cid.String(), "err", err)
				}
				break
			}
			if len(body) == 0 {
				// length 0 means "no frame"; skipped without side effect.
				continue
			}
			if len(body) > s.cap {
				s.logger.Error("statesync: oversize state frame dropped",
					"component", cid.String(), "len", len(body), "cap", s.cap, "err", core.ErrOversizeStateFrame)
				continue
			}
			s.InputState[cid] = body
		}
	}
}

// propagate implements step 3: for every StateSync not in Created, copy
// the source's latest snapshot to the target and advance its status on
// success.
func (s *Service) propagate(gs *core.GlobalState) {
	for _, sync := range gs.StateSyncs {
		if sync.Status == core.StateSyncCreated {
			continue
		}
		snapshot, ok := s.InputState[sync.Source]
		if !ok {
			continue
		}
		writer, ok := s.writers[sync.Target]
		if !ok {
			continue
		}
		if err := writer.WriteFrame(wire.EncodeFrame(snapshot)); err != nil {
			if !errors.Is(err, core.ErrWouldBlock) {
				s.logger.Error("statesync: propagate failed",
					"sync", sync.ID.String(), "target", sync.Target.String(), "err", err)
			}
			continue
		}
		sync.Status = core.StateSyncSynced
	}
}
