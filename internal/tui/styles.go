package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/leonardotrapani/livescribe/internal/store"
)

// Base styles for livescribe terminal output
var (
	// Header style for titles and section headers
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	// Label style for form field labels
	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// Muted style for secondary text
	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleHighlight = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	// Box style for bordered containers
	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)
)

// StatusStyle colors a segment status.
func StatusStyle(status store.Status) lipgloss.Style {
	switch status {
	case store.StatusCompleted:
		return StyleSuccess
	case store.StatusFailed:
		return StyleError
	default:
		return StyleWarning
	}
}

const logoASCII = `
 _ _                              _ _
| (_)_   _____  ___  ___ _ __ (_) |__   ___
| | \ \ / / _ \/ __|/ __| '__|| | '_ \ / _ \
| | |\ V /  __/\__ \ (__| |   | | |_) |  __/
|_|_| \_/ \___||___/\___|_|   |_|_.__/ \___|`

// Logo returns the livescribe ASCII art
func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}
