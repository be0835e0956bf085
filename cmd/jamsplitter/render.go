package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"jamsplitter/internal/status"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusCell colors terminal output by lifecycle state.
func statusCell(value string, colorize bool) string {
	if !colorize {
		return value
	}
	switch value {
	case "completed":
		return ansiGreen + value + ansiReset
	case "failed":
		return ansiRed + value + ansiReset
	case "processing":
		return ansiYellow + value + ansiReset
	default:
		return value
	}
}

func progressCell(progress float64) string {
	return fmt.Sprintf("%.0f%%", progress*100)
}

func timeCell(when time.Time) string {
	if when.IsZero() {
		return "-"
	}
	return when.Local().Format("2006-01-02 15:04:05")
}

// stemDisplayName renders a stem key for human output ("lead_vocals" ->
// "Lead Vocals").
func stemDisplayName(name string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(name), "_", " ")
	if cleaned == "" {
		return name
	}
	return cases.Title(language.Und).String(cleaned)
}

// renderJobTable renders queue snapshots as a rounded table with the
// progress column right-aligned.
func renderJobTable(views []status.JobView, colorize bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Source URL", "Status", "Progress", "Format", "Updated"})
	for _, view := range views {
		tw.AppendRow(table.Row{
			view.ID,
			view.SourceURL,
			statusCell(view.Status, colorize),
			progressCell(view.Progress),
			view.OutputFormat,
			timeCell(view.UpdatedAt),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
