package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Branding shared by the banner, version and help output
const (
	Title   = "Sonogram 🎛"
	Tagline = "Turn audio into a spectrogram image, from the terminal or over HTTP."
)

// Color palette
var (
	primaryColor   = SpecCyan
	accentColor    = SpecGreen
	successColor   = lipgloss.Color("#00AA00")
	errorColor     = SpecRed
	mutedColor     = SlateGray
	highlightColor = SpecYellow
	textColor      = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginTop(1).
			MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	// Highlight style for important values
	HighlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

// PrintBanner prints the application banner
func PrintBanner() {
	fmt.Println(TitleStyle.Render(Title))
	fmt.Println(SubtitleStyle.Render(Tagline))
	fmt.Println()
}

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render(Title))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("%s %s\n", HighlightStyle.Render("Warning:"), message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render("✓"), message)
}

// PrintInfo prints a key/value line
func PrintInfo(key, value string) {
	fmt.Printf("%s %s\n", KeyStyle.Render(key+":"), ValueStyle.Render(value))
}

// FormatDuration formats a duration nicely
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", d.Seconds()*1000)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// PrintBox prints content in a styled box
func PrintBox(content string) {
	fmt.Println(BoxStyle.Render(content))
}

// Verdict holds the classifier fields shown by PrintVerdict.
type Verdict struct {
	FileName   string
	IsFake     bool
	Confidence float64
	Fake, Real float64
	Features   []string
	Duration   float64
	SampleRate int
	FileSize   string
	Elapsed    time.Duration
}

// PrintVerdict prints a classification result in a box
func PrintVerdict(v Verdict) {
	var b strings.Builder

	label, style := "REAL", SuccessStyle
	if v.IsFake {
		label, style = "FAKE", ErrorStyle
	}
	b.WriteString(style.Render(fmt.Sprintf("%s  %.2f%% confidence", label, v.Confidence)))
	b.WriteString("\n\n")

	row := func(k, val string) {
		b.WriteString(KeyStyle.Render(fmt.Sprintf("%-12s", k)))
		b.WriteString(ValueStyle.Render(val))
		b.WriteString("\n")
	}
	row("File:", v.FileName)
	if v.FileSize != "" {
		row("Size:", v.FileSize)
	}
	row("Duration:", fmt.Sprintf("%.2fs", v.Duration))
	row("Sample rate:", fmt.Sprintf("%d Hz", v.SampleRate))
	row("Fake / Real:", fmt.Sprintf("%.2f%% / %.2f%%", v.Fake, v.Real))
	if v.Elapsed > 0 {
		row("Analysis:", FormatDuration(v.Elapsed))
	}

	if len(v.Features) > 0 {
		b.WriteString("\n")
		b.WriteString(KeyStyle.Render("Features:"))
		for _, f := range v.Features {
			b.WriteString("\n  • ")
			b.WriteString(f)
		}
	}

	PrintBox(strings.TrimRight(b.String(), "\n"))
}
