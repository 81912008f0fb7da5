package component

import (
	"github.com/caldera-rt/runner/internal/ipc"
	"github.com/caldera-rt/runner/internal/wire"
)

// StateManager is the component-side half of the state channel on
// fd 11 (§3, §4.3): publishes the component's own snapshot and
// accepts an externally injected one (e.g. a migration hand-off),
// mirroring original_source/crates/elafry/src/services/state.rs.
type StateManager struct {
	reader *ipc.FrameReader
	writer *ipc.FrameWriter

	pending  []byte
	received []byte
	gotNew   bool
}

func newStateManager(fd int) *StateManager {
	return &StateManager{
		reader: ipc.NewFrameReader(fd),
		writer: ipc.NewFrameWriter(fd),
	}
}

// Run writes any pending outbound snapshot and drains every available
// inbound snapshot, keeping only the most recent.
func (m *StateManager) Run() {
	if m.pending != nil {
		if err := m.writer.WriteFrame(wire.EncodeFrame(m.pending)); err == nil {
			m.pending = nil
		}
	}

	for {
		body, err := m.reader.Next()
		if err != nil {
			return
		}
		if len(body) == 0 {
			continue
		}
		m.received = body
		m.gotNew = true
	}
}

// SetData queues data as the component's current snapshot, written out
// on the next Run.
func (m *StateManager) SetData(data []byte) {
	m.pending = data
}

// GetData returns the most recently received externally-supplied
// snapshot, if one arrived since the last call.
func (m *StateManager) GetData() ([]byte, bool) {
	if !m.gotNew {
		return nil, false
	}
	m.gotNew = false
	return m.received, true
}
