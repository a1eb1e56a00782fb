package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/insajin/stuckbar/internal/branding"
)

// CLI 출력 스타일
var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorWarning))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorPrimary)).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorSuccess))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorSuccess)).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorError)).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorMutedGray))
)
