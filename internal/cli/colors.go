package cli

import "github.com/charmbracelet/lipgloss"

// Spectrogram palette
// The gradient stops the colour mapper paints, quiet to loud
var (
	SpecBlue   = lipgloss.Color("#0000FF") // Floor
	SpecCyan   = lipgloss.Color("#0064FF")
	SpecGreen  = lipgloss.Color("#00FF00")
	SpecYellow = lipgloss.Color("#FFFF00")
	SpecRed    = lipgloss.Color("#FF0000") // Peak

	// Accent colours
	SlateGray = lipgloss.Color("#8A8AA3") // Subtle text
)
