// Package render provides terminal output formatting for tai: styled
// symbols, markdown rendering for model prose, and a spinner for
// in-flight model calls.
package render

import (
	"github.com/charmbracelet/lipgloss"
)

// ANSI colors used across tai output.
const (
	ColorCyan   = lipgloss.Color("12") // step headers
	ColorYellow = lipgloss.Color("11") // proposed command / pending
	ColorGreen  = lipgloss.Color("10") // success indicator
	ColorRed    = lipgloss.Color("9")  // error indicator
	ColorGray   = lipgloss.Color("8")  // dim/secondary (timing, meta info)
)

// Symbols.
const (
	SymbolCommand = "▶" // proposed command
	SymbolSuccess = "✓" // executed, exit 0
	SymbolError   = "✗" // failed or spawn error
	SymbolSkipped = "→" // cancelled or copied
)

// Style definitions using Lip Gloss.
var (
	// HeaderStyle is used for step header lines.
	HeaderStyle = lipgloss.NewStyle().Foreground(ColorCyan)

	// CommandStyle is used for the proposed command line.
	CommandStyle = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)

	// PendingStyle is used for the spinner and pending status.
	PendingStyle = lipgloss.NewStyle().Foreground(ColorYellow)

	// SuccessStyle is used for success indicators.
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorGreen)

	// ErrorStyle is used for error indicators.
	ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed)

	// DimStyle is used for secondary information like timing.
	DimStyle = lipgloss.NewStyle().Foreground(ColorGray)
)
