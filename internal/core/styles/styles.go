// Package styles provides shared lipgloss styles for CLI output.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Title renders headings in command output.
	Title = lipgloss.NewStyle().Bold(true)

	// Identifier renders issue identifiers (ENG-42).
	Identifier = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))

	// Muted renders secondary metadata.
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	// Success renders completed states and confirmations.
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// Warning renders in-flight states.
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	// Error renders failures and canceled states.
	Error = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// State picks a style for a workflow state name. Unknown states render muted.
func State(state string) lipgloss.Style {
	switch state {
	case "Done", "Completed", "Merged":
		return Success
	case "In Progress", "In Review", "Started":
		return Warning
	case "Canceled", "Blocked":
		return Error
	default:
		return Muted
	}
}
