package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/johndauphine/pg2sqlite/internal/orchestrator"
)

// RenderSummary formats a finished run as a bordered box with per-table
// row counts.
func RenderSummary(s *orchestrator.Summary) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Migration complete") + "\n")

	row := func(label, value string) {
		b.WriteString(styleLabel.Render(label) + styleValue.Render(value) + "\n")
	}
	row("run", s.RunID)
	row("mode", s.Mode)
	row("schemas", strings.Join(s.Schemas, ", "))
	row("target", s.Destination)
	row("tables", fmt.Sprintf("%d", s.Tables))
	row("views", fmt.Sprintf("%d", s.Views))
	row("rows", fmt.Sprintf("%d", s.Rows))
	row("duration", s.Duration.Round(time.Millisecond).String())
	if s.Validated {
		b.WriteString(styleLabel.Render("validated") + styleSuccess.Render("row counts match") + "\n")
	}

	if len(s.TableStats) > 0 {
		b.WriteString("\n")
		width := 0
		for _, ts := range s.TableStats {
			if len(ts.Table) > width {
				width = len(ts.Table)
			}
		}
		name := lipgloss.NewStyle().Width(width + 2)
		for _, ts := range s.TableStats {
			b.WriteString(name.Render(ts.Table) +
				styleValue.Render(fmt.Sprintf("%10d", ts.Rows)) +
				styleMuted.Render(fmt.Sprintf("  %s", ts.Duration.Round(time.Millisecond))) + "\n")
		}
	}

	return styleBox.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}
