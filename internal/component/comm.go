package component

import (
	"github.com/caldera-rt/runner/internal/ipc"
	"github.com/caldera-rt/runner/internal/wire"
)

// drainAttempts bounds how many frames CommManager.Run pulls off the
// socket per iteration (original_source drains up to 1000 per pass).
const drainAttempts = 1000

// CommManager is the component-side half of the message channel on
// fd 10 (§3, §4.2): per-channel FIFO inboxes plus an outbound
// monotone send counter, mirroring
// original_source/crates/elafry/src/services/communication.rs.
type CommManager struct {
	reader *ipc.FrameReader
	writer *ipc.FrameWriter

	sendCount uint8
	inboxes   map[uint32][]wire.Message
}

func newCommManager(fd int) *CommManager {
	return &CommManager{
		reader:  ipc.NewFrameReader(fd),
		writer:  ipc.NewFrameWriter(fd),
		inboxes: make(map[uint32][]wire.Message),
	}
}

// Run drains up to drainAttempts frames from the socket, decoding each
// into its channel's FIFO inbox in arrival order.
func (m *CommManager) Run() {
	for i := 0; i < drainAttempts; i++ {
		body, err := m.reader.Next()
		if err != nil {
			// Any error (WouldBlock or otherwise) means no complete
			// frame is available right now; nothing more to drain.
			return
		}
		msg, err := wire.DecodeBody(body)
		if err != nil {
			continue
		}
		m.inboxes[msg.ChannelID] = append(m.inboxes[msg.ChannelID], msg)
	}
}

// GetMessage pops the oldest queued message on channelID, if any.
func (m *CommManager) GetMessage(channelID uint32) (wire.Message, bool) {
	queue, ok := m.inboxes[channelID]
	if !ok || len(queue) == 0 {
		return wire.Message{}, false
	}
	msg := queue[0]
	m.inboxes[channelID] = queue[1:]
	return msg, true
}

// SendMessage frames and writes one message on channelID, tagging it
// with the next send count. A transient WouldBlock is swallowed per the
// component contract (fd 10 writes never block the work step).
func (m *CommManager) SendMessage(channelID uint32, data []byte) {
	msg := wire.Message{ChannelID: channelID, Count: m.sendCount, Data: data}
	m.sendCount++
	_ = m.writer.WriteFrame(wire.Encode(msg))
}
