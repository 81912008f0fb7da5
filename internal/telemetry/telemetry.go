// Package telemetry records per-period control-loop timing and writes it
// out as CSV at process exit (§6: "Per-run times.csv written at
// exit"). No CSV library appears anywhere in the example pack, so this
// is one of the few places the runner reaches for the standard
// library's encoding/csv directly rather than a third-party dependency
// (see DESIGN.md).
package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/caldera-rt/runner/internal/core"
)

// Row is one control-loop iteration's timing record (§6).
// FrameIndex doubles as the "service_index" field: the schedule's
// only other per-iteration index, recorded alongside the period timing
// it belongs to (see DESIGN.md Open Question decisions).
type Row struct {
	TimestampUS     int64
	FrameIndex      int
	ScheduledUS     int64
	SleptUS         int64
	ActualUS        int64
	OverrunCount    int
}

var rowHeader = []string{
	"timestamp_us", "service_index", "scheduled_period_us",
	"slept_us", "actual_duration_us", "overrun_count",
}

// Recorder accumulates Rows in memory across the run and flushes them to
// disk on Close. It is only ever touched from the control thread.
type Recorder struct {
	path string
	rows []Row

	overruns int
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

// Record appends one control-loop iteration's timing.
func (r *Recorder) Record(row Row) {
	r.rows = append(r.rows, row)
}

// TotalOverruns returns the running overrun count, for the admin status
// endpoint.
func (r *Recorder) TotalOverruns() int {
	total := 0
	for _, row := range r.rows {
		total += row.OverrunCount
	}
	return total
}

// Close writes every accumulated row to r.path as CSV.
func (r *Recorder) Close() error {
	if r.path == "" {
		return nil
	}
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("telemetry: create %s: %w", r.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(rowHeader); err != nil {
		return fmt.Errorf("telemetry: write header: %w", err)
	}
	for _, row := range r.rows {
		record := []string{
			strconv.FormatInt(row.TimestampUS, 10),
			strconv.Itoa(row.FrameIndex),
			strconv.FormatInt(row.ScheduledUS, 10),
			strconv.FormatInt(row.SleptUS, 10),
			strconv.FormatInt(row.ActualUS, 10),
			strconv.Itoa(row.OverrunCount),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("telemetry: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteComponentTimes writes one CSV per component recording its
// per-invocation wall-clock timestamps (§6: "One CSV per component
// may be written with per-invocation wall-clocks"), drawing on
// core.Component.Times.
func WriteComponentTimes(dir string, gs *core.GlobalState) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("telemetry: mkdir %s: %w", dir, err)
	}
	for cid, c := range gs.Components {
		path := dir + "/" + cid.String() + ".csv"
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("telemetry: create %s: %w", path, err)
		}
		w := csv.NewWriter(f)
		if err := w.Write([]string{"invocation_timestamp_us"}); err != nil {
			f.Close()
			return fmt.Errorf("telemetry: write header: %w", err)
		}
		for _, ts := range c.Times {
			if err := w.Write([]string{strconv.FormatInt(ts, 10)}); err != nil {
				f.Close()
				return fmt.Errorf("telemetry: write row: %w", err)
			}
		}
		w.Flush()
		err = w.Error()
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
