package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/johndauphine/pg2sqlite/internal/logging"
)

// ProgressUpdate is one JSON progress line, for schedulers and scripts.
type ProgressUpdate struct {
	Timestamp       string  `json:"timestamp"`
	Phase           string  `json:"phase"`
	TablesComplete  int     `json:"tables_complete"`
	TablesTotal     int     `json:"tables_total"`
	RowsTransferred int64   `json:"rows_transferred"`
	RowsTotal       int64   `json:"rows_total,omitempty"`
	ProgressPct     float64 `json:"progress_pct"`
	RowsPerSecond   int64   `json:"rows_per_second,omitempty"`
	CurrentTable    string  `json:"current_table,omitempty"`
}

// JSONReporter writes progress as JSON lines, typically to stderr.
type JSONReporter struct {
	writer     io.Writer
	mu         sync.Mutex
	interval   time.Duration
	lastReport time.Time
	start      time.Time
	closed     bool

	state ProgressUpdate
}

// NewJSONReporter creates a reporter. interval is the minimum time between
// row updates; table and phase changes are always written.
func NewJSONReporter(writer io.Writer, interval time.Duration) *JSONReporter {
	if writer == nil {
		writer = os.Stderr
	}
	return &JSONReporter{
		writer:   writer,
		interval: interval,
		start:    time.Now(),
	}
}

func (r *JSONReporter) SetTotals(tables int, rows int64) {
	r.mu.Lock()
	r.state.Phase = "transferring"
	r.state.TablesTotal = tables
	r.state.RowsTotal = rows
	r.mu.Unlock()
	r.ReportImmediate()
}

func (r *JSONReporter) StartTable(name string, _ int64) {
	r.mu.Lock()
	r.state.CurrentTable = name
	r.mu.Unlock()
	r.ReportImmediate()
}

func (r *JSONReporter) Add(n int64) {
	r.mu.Lock()
	r.state.RowsTransferred += n
	r.mu.Unlock()
	r.Report()
}

func (r *JSONReporter) EndTable(string) {
	r.mu.Lock()
	r.state.TablesComplete++
	r.state.CurrentTable = ""
	r.mu.Unlock()
	r.ReportImmediate()
}

// Finish writes the final update and closes the reporter.
func (r *JSONReporter) Finish() {
	r.mu.Lock()
	r.state.Phase = "complete"
	r.mu.Unlock()
	r.ReportImmediate()
	r.Close()
}

// Report writes the current state unless the last write was too recent.
func (r *JSONReporter) Report() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	now := time.Now()
	if r.interval > 0 && now.Sub(r.lastReport) < r.interval {
		return
	}
	r.write(now)
}

// ReportImmediate writes the current state, bypassing throttling.
func (r *JSONReporter) ReportImmediate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.write(time.Now())
}

// write must be called with mu held.
func (r *JSONReporter) write(now time.Time) {
	update := r.state
	update.Timestamp = now.Format(time.RFC3339)
	if update.RowsTotal > 0 {
		update.ProgressPct = float64(update.RowsTransferred) / float64(update.RowsTotal) * 100
		if update.ProgressPct > 100 {
			update.ProgressPct = 100
		}
	}
	if elapsed := now.Sub(r.start).Seconds(); elapsed > 0 {
		update.RowsPerSecond = int64(float64(update.RowsTransferred) / elapsed)
	}

	data, err := json.Marshal(update)
	if err != nil {
		logging.Warn("Failed to marshal progress update: %v", err)
		return
	}
	fmt.Fprintln(r.writer, string(data))
	r.lastReport = now
}

// Close stops further output.
func (r *JSONReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
