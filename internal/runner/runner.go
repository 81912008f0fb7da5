// Package runner implements the control thread (§2, §5): the
// single real-time loop that drives the scheduler, communication,
// state, and management services in fixed order once per period,
// sleeps the remainder, and records timing telemetry. Follows a
// New/Start/Stop/Run daemon shape, generalized from a command-driven
// capture daemon to a fixed four-service control loop.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caldera-rt/runner/internal/admin"
	"github.com/caldera-rt/runner/internal/comm"
	"github.com/caldera-rt/runner/internal/config"
	"github.com/caldera-rt/runner/internal/core"
	"github.com/caldera-rt/runner/internal/ipc"
	"github.com/caldera-rt/runner/internal/management"
	"github.com/caldera-rt/runner/internal/metrics"
	"github.com/caldera-rt/runner/internal/scheduler"
	"github.com/caldera-rt/runner/internal/statesync"
	"github.com/caldera-rt/runner/internal/telemetry"
	"github.com/caldera-rt/runner/internal/wire"
	"github.com/caldera-rt/runner/internal/worker"
)

// Runner owns the single-writer GlobalState and the four per-period
// services (§2). One instance per process.
type Runner struct {
	logger *slog.Logger
	cfg    *config.RunnerConfig

	gs         *core.GlobalState
	scheduler  *scheduler.Scheduler
	comm       *comm.Service
	statesync  *statesync.Service
	management *management.Service
	worker     *worker.Worker
	udp        *ipc.UDPSocket
	telemetry  *telemetry.Recorder

	adminPublisher *admin.Publisher
	admin          *admin.Server

	workerCtx    context.Context
	workerCancel context.CancelFunc

	sigChan chan os.Signal
}

// New binds the UDP socket and wires every service against one
// GlobalState. It does not start the background worker; call Start for that.
func New(cfg *config.RunnerConfig, logger *slog.Logger) (*Runner, error) {
	udp, err := ipc.NewUDPSocket(cfg.Network.UDPListen)
	if err != nil {
		return nil, fmt.Errorf("runner: bind udp socket: %w", err)
	}

	grace, err := time.ParseDuration(cfg.Components.SpawnGracePeriod)
	if err != nil {
		udp.Close()
		return nil, fmt.Errorf("runner: invalid spawn_grace_period: %w", err)
	}

	w := worker.New(logger, cfg.Components.ConfigDir, grace, cfg.Scheduling.ComponentPriority)
	publisher := admin.NewPublisher()

	r := &Runner{
		logger:         logger,
		cfg:            cfg,
		gs:             core.NewGlobalState(),
		scheduler:      scheduler.New(logger, cfg.Scheduling.ComponentPriority),
		comm:           comm.New(logger, udp, cfg.Scheduling.CommAttempts),
		statesync:      statesync.New(logger, cfg.StateSync.Attempts, cfg.StateSync.CapBytes),
		management:     management.New(logger, w),
		worker:         w,
		udp:            udp,
		telemetry:      telemetry.NewRecorder(cfg.Telemetry.Path),
		adminPublisher: publisher,
	}
	if cfg.Admin.Enabled {
		r.admin = admin.New(logger, cfg.Admin.Socket, publisher)
	}
	return r, nil
}

// Start pins the control thread to its configured core/priority, starts
// the background worker goroutine, and arms signal handling. It does
// not block; call Run for the period loop.
func (r *Runner) Start() error {
	pid := os.Getpid()
	if err := ipc.SetAffinity(pid, r.cfg.Scheduling.ControlThreadCore); err != nil {
		r.logger.Error("runner: set control thread affinity failed", "err", err)
	}
	if err := ipc.SetRealtimeFIFO(pid, r.cfg.Scheduling.ControlThreadPriority); err != nil {
		r.logger.Error("runner: set control thread priority failed", "err", err)
	}

	r.workerCtx, r.workerCancel = context.WithCancel(context.Background())
	go r.worker.Run(r.workerCtx)

	if r.admin != nil {
		if err := r.admin.Start(); err != nil {
			r.logger.Error("runner: start admin endpoint failed", "err", err)
		}
	}

	r.sigChan = make(chan os.Signal, 1)
	signal.Notify(r.sigChan, syscall.SIGTERM, syscall.SIGINT)

	// Kick off the initial configuration load the same way a later
	// reconfiguration would be requested: drop a path onto inbox 1.
	if r.cfg.Components.InitialConfig != "" {
		r.gs.Inbox[1] = append(r.gs.Inbox[1], messageFor(r.cfg.Components.InitialConfig))
	}

	r.logger.Info("runner started", "node", r.cfg.Node.Hostname, "udp_listen", r.cfg.Network.UDPListen)
	return nil
}

// Run executes the control loop until a terminate message, a fatal
// lifecycle invariant violation, or an OS signal ends it.
func (r *Runner) Run() error {
	for {
		select {
		case sig := <-r.sigChan:
			r.logger.Info("runner: received shutdown signal", "signal", sig)
			return r.Stop()
		default:
		}

		period := r.currentPeriod()
		start := time.Now()

		r.scheduler.RunPeriod(r.gs)
		r.comm.RunPeriod(r.gs)
		r.statesync.RunPeriod(r.gs)
		if err := r.management.RunPeriod(r.gs); err != nil {
			r.logger.Error("runner: fatal lifecycle error, aborting", "err", err)
			r.Stop()
			return err
		}

		actual := time.Since(start)
		sleepFor := period.Duration() - actual
		overrun := 0
		if sleepFor > 0 {
			time.Sleep(sleepFor)
		} else {
			overrun = 1
			sleepFor = 0
		}

		r.recordTelemetry(start, period, actual, sleepFor, overrun)

		if r.gs.Done {
			r.logger.Info("runner: terminate message received, shutting down")
			return r.Stop()
		}
	}
}

func (r *Runner) currentPeriod() core.DurationUS {
	if r.gs.Schedule.Period > 0 {
		return r.gs.Schedule.Period
	}
	return core.DurationUS(time.Millisecond.Microseconds())
}

func (r *Runner) recordTelemetry(start time.Time, period core.DurationUS, actual, slept time.Duration, overrun int) {
	metrics.FrameIndex.Set(float64(r.gs.FrameIndex))
	metrics.PeriodDurationSeconds.Observe(actual.Seconds())
	metrics.WorkerBusy.Set(boolToFloat(r.worker.Busy()))
	for cid, sync := range r.gs.StateSyncs {
		metrics.StateSyncStatus.WithLabelValues(cid.String()).Set(float64(sync.Status))
	}
	for cid, c := range r.gs.Components {
		metrics.ComponentStatus.WithLabelValues(cid.String()).Set(componentStatusValue(c))
	}
	if overrun > 0 {
		metrics.OverrunTotal.WithLabelValues("runner").Inc()
	}

	if r.adminPublisher != nil {
		r.adminPublisher.Publish(admin.SnapshotFrom(r.gs, r.worker.Busy(), r.telemetry.TotalOverruns(), start.UnixMicro()))
	}

	r.telemetry.Record(telemetry.Row{
		TimestampUS:  start.UnixMicro(),
		FrameIndex:   r.gs.FrameIndex,
		ScheduledUS:  int64(period),
		SleptUS:      slept.Microseconds(),
		ActualUS:     actual.Microseconds(),
		OverrunCount: overrun,
	})
}

func messageFor(path string) wire.Message {
	return wire.Message{ChannelID: 1, Data: []byte(path)}
}

func componentStatusValue(c *core.Component) float64 {
	switch {
	case c.Implementation == nil:
		return metrics.ComponentStatusUninitialized
	case c.Run:
		return metrics.ComponentStatusRunning
	default:
		return metrics.ComponentStatusStopped
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Stop performs graceful shutdown: unregisters the signal handler, stops
// the background worker, closes the UDP socket, and flushes telemetry.
func (r *Runner) Stop() error {
	if r.sigChan != nil {
		signal.Stop(r.sigChan)
	}
	if r.workerCancel != nil {
		r.workerCancel()
	}
	if r.admin != nil {
		r.admin.Stop(context.Background())
	}
	r.udp.Close()

	if err := telemetry.WriteComponentTimes(r.cfg.Telemetry.ComponentDir, r.gs); err != nil {
		r.logger.Error("runner: write per-component telemetry failed", "err", err)
	}
	if err := r.telemetry.Close(); err != nil {
		r.logger.Error("runner: write times.csv failed", "err", err)
	}

	r.logger.Info("runner stopped")
	return nil
}
