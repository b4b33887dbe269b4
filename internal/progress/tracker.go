package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/schollz/progressbar/v3"
)

// Tracker draws a terminal progress bar.
type Tracker struct {
	out       io.Writer
	bar       *progressbar.ProgressBar
	total     int64
	current   atomic.Int64
	startTime time.Time

	tablesTotal int
	tablesDone  int
}

// New creates a tracker writing to out, or stderr when out is nil.
func New(out io.Writer) *Tracker {
	if out == nil {
		out = os.Stderr
	}
	return &Tracker{out: out, startTime: time.Now()}
}

// SetTotals sizes the bar from the catalog estimates.
func (t *Tracker) SetTotals(tables int, total int64) {
	t.tablesTotal = tables
	t.total = total
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription("Transferring"),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Add increments the progress counter. Estimates can be low, so the bar
// grows instead of overflowing.
func (t *Tracker) Add(n int64) {
	cur := t.current.Add(n)
	if t.bar == nil {
		return
	}
	if cur > t.total {
		t.total = cur
		t.bar.ChangeMax64(cur)
	}
	t.bar.Add64(n)
}

// StartTable shows the table being loaded.
func (t *Tracker) StartTable(name string, _ int64) {
	if t.bar != nil {
		t.bar.Describe(fmt.Sprintf("[%d/%d] %s", t.tablesDone+1, t.tablesTotal, name))
	}
}

// EndTable counts a finished table.
func (t *Tracker) EndTable(string) {
	t.tablesDone++
}

// Current returns the rows counted so far.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Finish completes the bar and logs throughput.
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
	}

	elapsed := time.Since(t.startTime)
	rowsPerSec := float64(t.current.Load()) / elapsed.Seconds()

	fmt.Fprintln(t.out)
	logging.Info("Transfer complete: %d rows in %s (%.0f rows/sec)",
		t.current.Load(), elapsed.Round(time.Millisecond), rowsPerSec)
}
