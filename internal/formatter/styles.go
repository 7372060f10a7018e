package formatter

import "github.com/charmbracelet/lipgloss"

// Terminal styles for CLI status lines.
var (
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#1DB954")).Bold(true)
	WarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E22134")).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Success renders a "✓ message" line.
func Success(msg string) string {
	return SuccessStyle.Render("✓ " + msg)
}

// Warn renders a "⚠ message" line.
func Warn(msg string) string {
	return WarnStyle.Render("⚠ " + msg)
}

// Failure renders a "✗ message" line.
func Failure(msg string) string {
	return ErrorStyle.Render("✗ " + msg)
}

// Muted renders secondary text.
func Muted(s string) string {
	return MutedStyle.Render(s)
}

// Header renders a section title.
func Header(s string) string {
	return HeaderStyle.Render(s)
}
