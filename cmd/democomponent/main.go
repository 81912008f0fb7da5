// Command democomponent is a minimal hosted process exercising the
// component contract (internal/component): it counts messages received
// on channel 2, publishes its running counters as its state snapshot,
// and emits one message on channel 3 each step. Grounded on
// original_source/apps/demo/src/main.rs.
package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/caldera-rt/runner/internal/component"
)

type demo struct {
	loopCount    uint32
	sendCount    uint32
	receiveCount uint32
}

func (d *demo) Init(services *component.Services) {
	d.sendCount = 0
	d.receiveCount = 0
}

func (d *demo) Run(services *component.Services) {
	d.loopCount++

	for {
		msg, ok := services.Comm.GetMessage(2)
		if !ok {
			break
		}
		d.receiveCount++
		_ = msg
	}

	services.Comm.SendMessage(3, []byte{byte(d.loopCount)})
	d.sendCount++
}

func (d *demo) SaveState() []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], d.loopCount)
	binary.BigEndian.PutUint32(buf[4:8], d.sendCount)
	binary.BigEndian.PutUint32(buf[8:12], d.receiveCount)
	return buf
}

func (d *demo) LoadState(data []byte) {
	if len(data) < 12 {
		return
	}
	d.loopCount = binary.BigEndian.Uint32(data[0:4])
	d.sendCount = binary.BigEndian.Uint32(data[4:8])
	d.receiveCount = binary.BigEndian.Uint32(data[8:12])
}

func (d *demo) ResetState() {
	d.loopCount = 0
	d.sendCount = 0
	d.receiveCount = 0
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := component.Run(&demo{}, logger); err != nil {
		fmt.Fprintf(os.Stderr, "democomponent: %v\n", err)
		os.Exit(1)
	}
}
