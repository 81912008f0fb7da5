package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/caldera-rt/runner/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisherPublishLoadRoundTrip(t *testing.T) {
	p := NewPublisher()
	if got := p.Load(); len(got.Components) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", got)
	}

	p.Publish(Snapshot{FrameIndex: 3, RouteCount: 2})
	got := p.Load()
	if got.FrameIndex != 3 || got.RouteCount != 2 {
		t.Fatalf("got %+v, want FrameIndex=3 RouteCount=2", got)
	}
}

func TestSnapshotFromCopiesGlobalState(t *testing.T) {
	gs := core.NewGlobalState()
	gs.FrameIndex = 7
	gs.Schedule.Period = 1000

	cid := core.NewID()
	gs.Components[cid] = &core.Component{ID: cid, Run: true, Implementation: &core.Implementation{PID: 42}}

	sid := core.NewID()
	src, tgt := core.NewID(), core.NewID()
	gs.StateSyncs[sid] = &core.StateSync{ID: sid, Source: src, Target: tgt, Status: core.StateSyncStarted}

	gs.AddRoute(core.RouteEndpoint{Endpoint: core.RunnerEndpoint(), ChannelID: 1}, core.RouteEndpoint{Endpoint: core.ComponentEndpoint(cid), ChannelID: 2})

	snap := SnapshotFrom(gs, true, 2, 12345)
	if snap.FrameIndex != 7 || snap.Period != 1000 || snap.RouteCount != 1 || !snap.WorkerBusy || snap.OverrunTotal != 2 || snap.SampleUnixUS != 12345 {
		t.Fatalf("unexpected snapshot scalar fields: %+v", snap)
	}
	if len(snap.Components) != 1 || snap.Components[0].PID != 42 || !snap.Components[0].Run {
		t.Fatalf("unexpected component snapshot: %+v", snap.Components)
	}
	if len(snap.StateSyncs) != 1 || snap.StateSyncs[0].Status != "started" {
		t.Fatalf("unexpected state sync snapshot: %+v", snap.StateSyncs)
	}
}

func TestServerServesPublishedSnapshotOverUDS(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "admin.sock")
	p := NewPublisher()
	p.Publish(Snapshot{FrameIndex: 9, RouteCount: 4})

	s := New(testLogger(), socketPath, p)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var got Snapshot
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FrameIndex != 9 || got.RouteCount != 4 {
		t.Fatalf("got %+v, want FrameIndex=9 RouteCount=4", got)
	}
}

func TestServerStopRemovesSocketFile(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "admin.sock")
	s := New(testLogger(), socketPath, NewPublisher())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, err := net.Dial("unix", socketPath); err == nil {
		t.Fatal("expected socket to be removed after Stop")
	}
}
