package ui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/nconklindev/conso2b/internal/types"
)

var (
	accent    = lipgloss.Color("#2E86DE")
	highlight = lipgloss.Color("#54A0FF")
	muted     = lipgloss.Color("#6B7280")
	warning   = lipgloss.Color("#FFB84D")
	danger    = lipgloss.Color("#FF4757")
	success   = lipgloss.Color("#2ED573")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			MarginTop(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(muted).
			MarginBottom(1)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	UnselectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	CheckedStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true)

	LockedStyle = lipgloss.NewStyle().
			Foreground(muted).
			Italic(true)

	MetricStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(muted).
			Padding(0, 2).
			MarginRight(1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warning)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(success).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(muted).
			MarginTop(1)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2)
)

func severityStyle(s types.Severity) lipgloss.Style {
	switch s {
	case types.SeveritySuccess:
		return SuccessStyle
	case types.SeverityWarning:
		return WarningStyle
	case types.SeverityError:
		return ErrorStyle
	default:
		return UnselectedStyle
	}
}

func previewStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(muted).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(accent).
		Bold(false)
	return s
}
