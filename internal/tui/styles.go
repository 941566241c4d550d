package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/waabox/pipegraph/internal/domain"
)

// Color palette shared by every view.
const (
	ColorPrimary   = "255" // White - main text
	ColorSecondary = "245" // Light gray - supporting text
	ColorMuted     = "240" // Dark gray - hints, dimmed jobs
	ColorSuccess   = "42"  // Green
	ColorError     = "203" // Red
	ColorWarning   = "214" // Orange - manual, scheduled
	ColorAccent    = "45"  // Cyan - running, selection
)

var (
	PrimaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimary))
	SecondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondary))
	MutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted))
	HintStyle      = MutedStyle.Italic(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarning))
	AccentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	BoldStyle = lipgloss.NewStyle().Bold(true)

	// DimmedStyle renders jobs outside the highlighted dependency chain.
	DimmedStyle   = lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color(ColorMuted))
	SelectedStyle = lipgloss.NewStyle().Reverse(true)
	AlertStyle    = ErrorStyle.Bold(true)

	columnStyle      = lipgloss.NewStyle().Width(columnWidth).MarginRight(2)
	columnTitleStyle = SecondaryStyle.Bold(true)
)

const columnWidth = 26

// statusIcon returns the glyph for a status kind.
func statusIcon(kind domain.StatusKind) string {
	switch kind {
	case domain.StatusSuccess:
		return "✓"
	case domain.StatusFailed:
		return "✗"
	case domain.StatusRunning:
		return "●"
	case domain.StatusPending:
		return "◌"
	case domain.StatusManual:
		return "▶"
	case domain.StatusScheduled:
		return "◷"
	case domain.StatusSkipped:
		return "»"
	case domain.StatusCanceled:
		return "○"
	default:
		return "?"
	}
}

func statusStyle(kind domain.StatusKind) lipgloss.Style {
	switch kind {
	case domain.StatusSuccess:
		return SuccessStyle
	case domain.StatusFailed:
		return ErrorStyle
	case domain.StatusRunning:
		return AccentStyle
	case domain.StatusManual, domain.StatusScheduled:
		return WarningStyle
	default:
		return MutedStyle
	}
}

// styledIcon renders the status glyph in its color.
func styledIcon(kind domain.StatusKind) string {
	return statusStyle(kind).Render(statusIcon(kind))
}
