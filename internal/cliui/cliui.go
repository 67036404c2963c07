// Package cliui renders the pipeline CLI's stdout progress lines (spec.md
// §7: "the pipeline prints per-stage progress"). Grounded on the teacher's
// cmd/nerd/ui/styles.go color palette and Style-per-semantic-role
// convention, scaled down from its full light/dark theme to the handful of
// semantic roles a non-interactive CLI run actually needs: a stage label,
// a success line, a failure line, and a stat row.
package cliui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	stageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")).Bold(true) // Info
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))            // Success
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))            // Destructive
	statStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#d6dae0"))            // Muted
)

// Stage renders "==> name" in the stage color, e.g. "==> analyzing repo".
func Stage(name string) string {
	return stageStyle.Render("==> " + name)
}

// Success renders a completed-stage line.
func Success(msg string) string {
	return successStyle.Render(msg)
}

// Failure renders a failed-stage line.
func Failure(msg string) string {
	return failureStyle.Render(msg)
}

// Stat renders "label: value" in the muted stat color, with value itself
// left to the caller to format (often via Bytes/Count below).
func Stat(label, value string) string {
	return statStyle.Render(fmt.Sprintf("%s: %s", label, value))
}

// Bytes formats a byte count the way an operator reads repo/token sizes,
// e.g. 1_048_576 -> "1.0 MB".
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Count formats an integer with thousands separators, e.g. 12345 -> "12,345".
func Count(n int) string {
	return humanize.Comma(int64(n))
}

// Since formats how long ago t was, e.g. "3 days ago" — used for job
// and version timestamps in worker/job-queue log lines.
func Since(t time.Time) string {
	return humanize.Time(t)
}
