package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ccdeck/ccdeck/internal/core/models"
)

var (
	workingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	waitingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	remoteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func statusBadge(s models.Status) string {
	switch s {
	case models.StatusWorking:
		return workingStyle.Render("● working")
	case models.StatusWaiting:
		return waitingStyle.Render("◐ waiting")
	default:
		return idleStyle.Render("○ idle")
	}
}

func sourceBadge(s models.Source) string {
	if s == models.SourceRemote {
		return remoteStyle.Render("[remote]")
	}
	return dimStyle.Render("[local]")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
