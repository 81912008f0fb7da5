package component

import (
	"testing"

	"github.com/caldera-rt/runner/internal/ipc"
	"github.com/caldera-rt/runner/internal/wire"
)

func TestCommManagerFIFOOrderPerChannel(t *testing.T) {
	pair, err := ipc.NewSocketPair("comm-test")
	if err != nil {
		t.Fatalf("NewSocketPair: %v", err)
	}
	defer pair.Close()

	if err := ipc.SetNonblocking(int(pair.Child.Fd())); err != nil {
		t.Fatalf("SetNonblocking: %v", err)
	}

	// parent side plays the runner, writing frames the child manager reads.
	parentWriter := ipc.NewFrameWriter(int(pair.Parent.Fd()))
	send := func(channel uint32, count uint8, data []byte) {
		msg := wire.Message{ChannelID: channel, Count: count, Data: data}
		if err := parentWriter.WriteFrame(wire.Encode(msg)); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	send(1, 0, []byte("first"))
	send(1, 1, []byte("second"))
	send(2, 0, []byte("other-channel"))

	mgr := newCommManager(int(pair.Child.Fd()))
	mgr.Run()

	msg, ok := mgr.GetMessage(1)
	if !ok || string(msg.Data) != "first" {
		t.Fatalf("got %+v ok=%v, want first message on channel 1", msg, ok)
	}
	msg, ok = mgr.GetMessage(1)
	if !ok || string(msg.Data) != "second" {
		t.Fatalf("got %+v ok=%v, want second message on channel 1", msg, ok)
	}
	if _, ok := mgr.GetMessage(1); ok {
		t.Fatal("expected channel 1 to be drained")
	}

	msg, ok = mgr.GetMessage(2)
	if !ok || string(msg.Data) != "other-channel" {
		t.Fatalf("got %+v ok=%v, want message on channel 2", msg, ok)
	}
}

func TestCommManagerSendMessageIncrementsCount(t *testing.T) {
	pair, err := ipc.NewSocketPair("comm-send-test")
	if err != nil {
		t.Fatalf("NewSocketPair: %v", err)
	}
	defer pair.Close()

	if err := ipc.SetNonblocking(int(pair.Child.Fd())); err != nil {
		t.Fatalf("SetNonblocking: %v", err)
	}

	mgr := newCommManager(int(pair.Child.Fd()))
	mgr.SendMessage(5, []byte("a"))
	mgr.SendMessage(5, []byte("b"))

	parentReader := ipc.NewFrameReader(int(pair.Parent.Fd()))
	body, err := parentReader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	first, err := wire.DecodeBody(body)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if first.Count != 0 {
		t.Fatalf("got count %d, want 0", first.Count)
	}

	body, err = parentReader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	second, err := wire.DecodeBody(body)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if second.Count != 1 {
		t.Fatalf("got count %d, want 1", second.Count)
	}
}
