// Package tui renders the interactive progress view and the end-of-run
// summary.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/johndauphine/pg2sqlite/internal/progress"
)

type totalsMsg struct {
	tables int
	rows   int64
}

type tableStartMsg struct {
	name string
	rows int64
}

type rowsMsg int64

type tableEndMsg string

// DoneMsg ends the view. Err is the outcome of the load.
type DoneMsg struct {
	Err error
}

// Model is the bubbletea model for the load progress view.
type Model struct {
	bar     bprogress.Model
	spinner spinner.Model
	cancel  context.CancelFunc
	start   time.Time

	tablesTotal int
	tablesDone  int
	rowsTotal   int64
	rows        int64
	current     string

	cancelling bool
	done       bool
	err        error
}

// NewModel returns a model. cancel is called when the user presses ctrl+c.
func NewModel(cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleSuccess
	return Model{
		bar:     bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(40)),
		spinner: sp,
		cancel:  cancel,
		start:   time.Now(),
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update applies progress messages and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.cancelling {
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		width := msg.Width - 4
		if width > 80 {
			width = 80
		}
		if width > 10 {
			m.bar.Width = width
		}
		return m, nil
	case totalsMsg:
		m.tablesTotal = msg.tables
		m.rowsTotal = msg.rows
		return m, nil
	case tableStartMsg:
		m.current = msg.name
		return m, nil
	case rowsMsg:
		m.rows += int64(msg)
		if m.rows > m.rowsTotal {
			m.rowsTotal = m.rows
		}
		return m, nil
	case tableEndMsg:
		m.tablesDone++
		m.current = ""
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) percent() float64 {
	if m.rowsTotal <= 0 {
		if m.tablesTotal == 0 {
			return 0
		}
		return float64(m.tablesDone) / float64(m.tablesTotal)
	}
	return float64(m.rows) / float64(m.rowsTotal)
}

// View renders the progress box.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("pg2sqlite"))
	b.WriteString("\n")

	status := m.spinner.View() + " "
	switch {
	case m.done && m.err != nil:
		status = styleError.Render("failed: " + m.err.Error())
	case m.done:
		status = styleSuccess.Render("committed")
	case m.cancelling:
		status += styleError.Render("cancelling, rolling back...")
	case m.current != "":
		status += styleValue.Render("loading " + m.current)
	default:
		status += styleMuted.Render("starting")
	}
	b.WriteString(status + "\n\n")
	b.WriteString(m.bar.ViewAs(m.percent()) + "\n\n")

	elapsed := time.Since(m.start).Round(time.Second)
	b.WriteString(styleLabel.Render("tables") + styleValue.Render(fmt.Sprintf("%d/%d", m.tablesDone, m.tablesTotal)) + "\n")
	b.WriteString(styleLabel.Render("rows") + styleValue.Render(fmt.Sprintf("%d", m.rows)) + "\n")
	b.WriteString(styleLabel.Render("elapsed") + styleValue.Render(elapsed.String()))
	if !m.done {
		b.WriteString("\n" + styleMuted.Render("ctrl+c to cancel"))
	}
	return styleBox.Render(b.String()) + "\n"
}

// Observer forwards progress to a running program.
type Observer struct {
	send func(tea.Msg)
}

// NewObserver returns an observer delivering messages through send,
// usually (*tea.Program).Send.
func NewObserver(send func(tea.Msg)) *Observer {
	return &Observer{send: send}
}

func (o *Observer) SetTotals(tables int, rows int64) {
	o.send(totalsMsg{tables: tables, rows: rows})
}

func (o *Observer) StartTable(name string, rows int64) {
	o.send(tableStartMsg{name: name, rows: rows})
}

func (o *Observer) Add(n int64)          { o.send(rowsMsg(n)) }
func (o *Observer) EndTable(name string) { o.send(tableEndMsg(name)) }

// Finish is a no-op; Run ends the view once work returns.
func (o *Observer) Finish() {}

// Run shows the progress view on out while work runs, and returns work's
// error. The view exits when work returns.
func Run(out io.Writer, cancel context.CancelFunc, work func(progress.Observer) error) error {
	p := tea.NewProgram(NewModel(cancel), tea.WithOutput(out))

	errCh := make(chan error, 1)
	go func() {
		err := work(NewObserver(p.Send))
		p.Send(DoneMsg{Err: err})
		errCh <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("running progress view: %w", err)
	}
	return <-errCh
}
