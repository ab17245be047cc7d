package main

import (
	"fmt"
	"strings"
	"time"

	"infodisplay/internal/scheduler"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	dueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// column pads a cell to width before styling so ANSI codes do not skew the
// alignment.
func column(s string, width int, style lipgloss.Style) string {
	return style.Render(fmt.Sprintf("%-*s", width, s))
}

func pluginTable(statuses []scheduler.Status) string {
	if len(statuses) == 0 {
		return mutedStyle.Render("No plugins loaded")
	}

	rows := []string{
		headerStyle.Render(fmt.Sprintf("  %-10s %-9s %-20s %-4s %s", "NAME", "INTERVAL", "LAST RUN", "DUE", "DESCRIPTION")),
	}
	for _, st := range statuses {
		marker := "  "
		nameStyle := lipgloss.NewStyle()
		if st.IsCurrent {
			marker = currentStyle.Render("* ")
			nameStyle = currentStyle
		}

		lastRun := "never"
		if st.LastRun != nil {
			lastRun = st.LastRun.Local().Format("2006-01-02 15:04:05")
		}

		due := column("no", 4, mutedStyle)
		if st.NeedsUpdate {
			due = column("yes", 4, dueStyle)
		}

		rows = append(rows, marker+strings.Join([]string{
			column(st.Name, 10, nameStyle),
			column(fmt.Sprintf("%ds", st.IntervalSeconds()), 9, lipgloss.NewStyle()),
			column(lastRun, 20, mutedStyle),
			due,
			st.Description,
		}, " "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func historyTable(runs []scheduler.Result) string {
	if len(runs) == 0 {
		return mutedStyle.Render("No runs recorded")
	}

	rows := []string{
		headerStyle.Render(fmt.Sprintf("%-20s %-10s %-9s %-7s %-9s %s", "STARTED", "PLUGIN", "OUTCOME", "FORCED", "DURATION", "ERROR")),
	}
	for _, r := range runs {
		outcomeStyle := currentStyle
		if r.Outcome == scheduler.OutcomeFailed {
			outcomeStyle = failedStyle
		}
		forced := "no"
		if r.Forced {
			forced = "yes"
		}
		rows = append(rows, strings.Join([]string{
			column(r.StartedAt.Local().Format("2006-01-02 15:04:05"), 20, mutedStyle),
			column(r.Plugin, 10, lipgloss.NewStyle()),
			column(string(r.Outcome), 9, outcomeStyle),
			column(forced, 7, lipgloss.NewStyle()),
			column(r.Duration.Round(time.Millisecond).String(), 9, lipgloss.NewStyle()),
			r.Error,
		}, " "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
