// Package ui renders CLI output: status summaries, entry tables, and the
// color styles shared across commands. Styling degrades automatically on
// dumb terminals.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/cometa-fiber/fieldsync/internal/model"
	"github.com/cometa-fiber/fieldsync/internal/queue"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

func init() {
	// Respect NO_COLOR and non-tty output.
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

// Connectivity renders the online/offline banner.
func Connectivity(online bool) string {
	if online {
		return onlineStyle.Render("● online")
	}
	return offlineStyle.Render("● offline")
}

// QueueSummary renders queue depth per status on one line.
func QueueSummary(counts map[queue.Status]int) string {
	parts := []string{
		fmt.Sprintf("pending %d", counts[queue.StatusPending]),
		fmt.Sprintf("in progress %d", counts[queue.StatusInProgress]),
		fmt.Sprintf("completed %d", counts[queue.StatusCompleted]),
	}
	line := strings.Join(parts, "  ")
	if failed := counts[queue.StatusFailed]; failed > 0 {
		line += "  " + errStyle.Render(fmt.Sprintf("failed %d", failed))
	}
	return line
}

// QueueItems renders failed or pending items with their last error.
func QueueItems(items []queue.Item) string {
	if len(items) == 0 {
		return faintStyle.Render("queue empty")
	}
	var b strings.Builder
	for _, item := range items {
		line := fmt.Sprintf("%-10s %-12s retries %d/%d",
			item.Type, item.Status, item.RetryCount, queue.MaxRetries)
		switch item.Status {
		case queue.StatusFailed:
			line = errStyle.Render(line)
		case queue.StatusPending:
			line = warnStyle.Render(line)
		}
		b.WriteString(line)
		if item.LastError != "" {
			b.WriteString(faintStyle.Render("  " + item.LastError))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// EntryLine renders one work entry as a table row.
func EntryLine(e model.WorkEntry) string {
	status := "pending"
	style := warnStyle
	switch {
	case e.Approved:
		status = "approved"
		style = okStyle
	case e.Rejected():
		status = "rejected"
		style = errStyle
	}

	line := fmt.Sprintf("%-36s %s %-20s %8.1fm  %s",
		e.ID, e.Date, e.StageCode, e.MetersDoneM, style.Render(status))
	if e.Rejected() && e.RejectionReason != nil {
		line += faintStyle.Render("  (" + *e.RejectionReason + ")")
	}
	return line
}

// EntryTable renders work entries, one per line, with a header.
func EntryTable(entries []model.WorkEntry) string {
	if len(entries) == 0 {
		return faintStyle.Render("no entries")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%-36s %-10s %-20s %9s  %s",
		"ID", "DATE", "STAGE", "METERS", "STATUS")))
	b.WriteString("\n")
	for _, e := range entries {
		b.WriteString(EntryLine(e))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Title renders a section heading.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Err renders an error line.
func Err(s string) string {
	return errStyle.Render(s)
}

// OK renders a success line.
func OK(s string) string {
	return okStyle.Render(s)
}

// Faint renders secondary text.
func Faint(s string) string {
	return faintStyle.Render(s)
}
