// Package worker implements the background worker (§4.5): the
// single auxiliary thread that performs the slow side of lifecycle
// management (process spawn/kill, configuration file I/O) so the
// control thread never blocks. All hand-off structures are guarded by
// try-lock discipline from the control thread's side and full locks
// from the worker's side (§5).
package worker

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/tevino/abool"

	"github.com/caldera-rt/runner/internal/config"
	"github.com/caldera-rt/runner/internal/core"
	"github.com/caldera-rt/runner/internal/ipc"
)

// Worker owns the slow lifecycle operations. Exactly one instance runs
// per runner process, on its own goroutine; the worker sets no CPU
// affinity and no scheduling class for itself.
type Worker struct {
	logger           *slog.Logger
	configDir        string
	spawnGracePeriod time.Duration
	componentPrio    int

	wake chan struct{}
	busy *abool.AtomicBool

	inboundMu sync.Mutex
	inbound   []Request

	doneConfigMu sync.Mutex
	doneConfig   *config.TasksDocument

	doneImplementMu sync.Mutex
	doneImplement   map[core.ComponentID]*core.Implementation

	doneRemoveMu sync.Mutex
	doneRemove   []core.ComponentID
}

// New builds a Worker. configDir resolves relative LoadConfiguration
// paths (§4.5); gracePeriod is how long a spawned component is
// given to initialize before its Implementation is handed back.
func New(logger *slog.Logger, configDir string, gracePeriod time.Duration, componentPriority int) *Worker {
	return &Worker{
		logger:           logger,
		configDir:        configDir,
		spawnGracePeriod: gracePeriod,
		componentPrio:    componentPriority,
		wake:             make(chan struct{}, 1),
		busy:             abool.New(),
		doneImplement:    make(map[core.ComponentID]*core.Implementation),
	}
}

// ── Control-thread side: try-lock only, never blocks ──

// TryEnqueue appends req to the inbound queue if the lock is free. It
// returns false on contention; the caller (a NonBlocking action's state
// machine) simply retries next period.
func (w *Worker) TryEnqueue(req Request) bool {
	if !w.inboundMu.TryLock() {
		return false
	}
	defer w.inboundMu.Unlock()
	w.inbound = append(w.inbound, req)
	return true
}

// Signal wakes the worker if it is idle; a no-op if it is already awake
// and has not yet consumed the previous signal.
func (w *Worker) Signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Busy reports whether the worker is mid-batch, for the admin status
// endpoint.
func (w *Worker) Busy() bool {
	return w.busy.IsSet()
}

// TryTakeConfiguration consumes the parsed configuration if present.
func (w *Worker) TryTakeConfiguration() (*config.TasksDocument, bool) {
	if !w.doneConfigMu.TryLock() {
		return nil, false
	}
	defer w.doneConfigMu.Unlock()
	if w.doneConfig == nil {
		return nil, false
	}
	doc := w.doneConfig
	w.doneConfig = nil
	return doc, true
}

// TryTakeImplementation consumes a finished AddComponentImpl result.
func (w *Worker) TryTakeImplementation(cid core.ComponentID) (*core.Implementation, bool) {
	if !w.doneImplementMu.TryLock() {
		return nil, false
	}
	defer w.doneImplementMu.Unlock()
	impl, ok := w.doneImplement[cid]
	if ok {
		delete(w.doneImplement, cid)
	}
	return impl, ok
}

// TryTakeRemoved reports (and consumes) whether cid's RemoveComponentImpl
// has finished.
func (w *Worker) TryTakeRemoved(cid core.ComponentID) bool {
	if !w.doneRemoveMu.TryLock() {
		return false
	}
	defer w.doneRemoveMu.Unlock()
	for i, id := range w.doneRemove {
		if id == cid {
			w.doneRemove = append(w.doneRemove[:i], w.doneRemove[i+1:]...)
			return true
		}
	}
	return false
}

// ── Worker side: full locks, runs on its own goroutine/thread ──

// Run drains the inbound queue whenever signaled, until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	w.busy.Set()
	defer w.busy.UnSet()

	w.inboundMu.Lock()
	batch := w.inbound
	w.inbound = nil
	w.inboundMu.Unlock()

	if len(batch) == 0 {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker: batch panicked", "panic", r)
		}
	}()

	wg := conc.NewWaitGroup()
	for _, req := range batch {
		req := req
		wg.Go(func() { w.handle(ctx, req) })
	}
	wg.Wait()
}

func (w *Worker) handle(ctx context.Context, req Request) {
	switch req.Kind {
	case RequestLoadConfiguration:
		w.handleLoadConfiguration(req)
	case RequestAddComponentImpl:
		w.handleAddComponentImpl(req)
	case RequestRemoveComponentImpl:
		w.handleRemoveComponentImpl(req)
	default:
		w.logger.Error("worker: unknown request kind", "kind", req.Kind)
	}
}

// handleLoadConfiguration implements §4.5's LoadConfiguration job:
// errors are non-fatal, the done-configuration slot simply stays empty.
func (w *Worker) handleLoadConfiguration(req Request) {
	path := req.ConfigPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.configDir, path)
	}
	doc, err := config.LoadTasksDocument(path)
	if err != nil {
		w.logger.Error("worker: load configuration failed", "path", path, "err", err)
		return
	}
	w.doneConfigMu.Lock()
	w.doneConfig = doc
	w.doneConfigMu.Unlock()
}

// handleAddComponentImpl forks/execs the component binary with its two
// sockets landing on fd 10 and fd 11, pins it to its assigned core,
// elevates it to real-time FIFO, gives it a short grace period to
// initialize, then deposits the Implementation (§4.5).
func (w *Worker) handleAddComponentImpl(req Request) {
	dataPair, err := ipc.NewSocketPair("data-" + req.ComponentID.String())
	if err != nil {
		w.logger.Error("worker: add component impl: socketpair", "component", req.ComponentID.String(), "err", err)
		return
	}
	statePair, err := ipc.NewSocketPair("state-" + req.ComponentID.String())
	if err != nil {
		dataPair.Close()
		w.logger.Error("worker: add component impl: socketpair", "component", req.ComponentID.String(), "err", err)
		return
	}

	extraFiles, err := ipc.ExtraFilesFor(dataPair.Child, statePair.Child)
	if err != nil {
		dataPair.Close()
		statePair.Close()
		w.logger.Error("worker: add component impl: extra files", "component", req.ComponentID.String(), "err", err)
		return
	}
	fillers := extraFiles[:len(extraFiles)-2] // the 7 /dev/null padding files

	cmd := exec.Command(req.LaunchPath)
	cmd.ExtraFiles = extraFiles

	if err := cmd.Start(); err != nil {
		w.logger.Error("worker: add component impl: spawn failed", "component", req.ComponentID.String(), "path", req.LaunchPath, "err", err)
		closeExtraFillers(fillers)
		dataPair.Close()
		statePair.Close()
		return
	}
	closeExtraFillers(fillers)  // parent no longer needs the /dev/null padding
	dataPair.Child.Close()      // nor its copy of the child's data socket
	statePair.Child.Close()     // nor its copy of the child's state socket

	pid := cmd.Process.Pid
	if err := ipc.SetAffinity(pid, req.Core); err != nil {
		w.logger.Error("worker: set affinity failed", "component", req.ComponentID.String(), "pid", pid, "err", err)
	}
	if err := ipc.SetRealtimeFIFO(pid, w.componentPrio); err != nil {
		w.logger.Error("worker: set realtime priority failed", "component", req.ComponentID.String(), "pid", pid, "err", err)
	}

	time.Sleep(w.spawnGracePeriod)

	impl := &core.Implementation{
		PID:       pid,
		Cmd:       cmd,
		DataSock:  dataPair.Parent,
		StateSock: statePair.Parent,
	}

	w.doneImplementMu.Lock()
	w.doneImplement[req.ComponentID] = impl
	w.doneImplementMu.Unlock()
}

// handleRemoveComponentImpl kills the child and records completion
// (§4.5).
func (w *Worker) handleRemoveComponentImpl(req Request) {
	if req.Implementation == nil {
		w.logger.Error("worker: remove component impl: nil implementation", "component", req.ComponentID.String())
		return
	}
	if err := ipc.Kill(req.Implementation.PID); err != nil {
		w.logger.Error("worker: kill failed", "component", req.ComponentID.String(), "pid", req.Implementation.PID, "err", err)
	}
	req.Implementation.DataSock.Close()
	req.Implementation.StateSock.Close()

	w.doneRemoveMu.Lock()
	w.doneRemove = append(w.doneRemove, req.ComponentID)
	w.doneRemoveMu.Unlock()
}

func closeExtraFillers(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
