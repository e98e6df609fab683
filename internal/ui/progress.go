package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/sonogram/internal/pipeline"
)

// Spectrogram palette, the same stops the colour mapper uses
var (
	lowBlue   = lipgloss.Color("#0000FF")
	coolCyan  = lipgloss.Color("#0064FF")
	midGreen  = lipgloss.Color("#00FF00")
	warmYell  = lipgloss.Color("#FFFF00")
	hotRed    = lipgloss.Color("#FF0000")
	mutedGray = lipgloss.Color("#8A8AA3")
)

// Phase is the current stage of a render
type Phase int

const (
	PhaseDecoding Phase = iota
	PhaseAnalysis
	PhaseComplete
	PhaseFailed
)

// AnalysisProgress reports transformed frames
type AnalysisProgress struct {
	Frame       int
	TotalFrames int
	Elapsed     time.Duration
}

// RenderComplete signals the image has been written
type RenderComplete struct {
	OutputFile    string
	ThumbnailFile string
	FileSize      int64
	Result        *pipeline.Result
	TotalTime     time.Duration
}

// RenderFailed signals the run stopped with an error
type RenderFailed struct {
	Err error
}

// progressQuitMsg is sent when it's time to quit after showing completion
type progressQuitMsg struct{}

// Model is the Bubbletea model for `sonogram render`
type Model struct {
	progressBar progress.Model
	summaryBar  progress.Model
	phase       Phase

	inputFile string
	analysis  AnalysisProgress
	complete  *RenderComplete
	failure   error

	startTime       time.Time
	width           int
	noPreview       bool
	cachedPreview   string
	completionDelay time.Duration
}

// NewModel creates the render progress model
func NewModel(inputFile string, noPreview bool) *Model {
	p := progress.New(
		progress.WithGradient(string(lowBlue), string(hotRed)),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	summaryBar := progress.New(
		progress.WithGradient(string(coolCyan), string(warmYell)),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)

	return &Model{
		progressBar:     p,
		summaryBar:      summaryBar,
		phase:           PhaseDecoding,
		inputFile:       inputFile,
		startTime:       time.Now(),
		completionDelay: time.Second,
		noPreview:       noPreview,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(10, min(msg.Width-30, 50))
		return m, nil

	case AnalysisProgress:
		m.analysis = msg
		m.phase = PhaseAnalysis
		return m, nil

	case RenderComplete:
		m.complete = &msg
		m.phase = PhaseComplete
		if !m.noPreview && msg.Result != nil && msg.Result.Raster != nil {
			m.cachedPreview = Preview(msg.Result.Raster, DefaultPreviewConfig(), "Preview:")
		}
		return m, tea.Tick(m.completionDelay, func(t time.Time) tea.Msg {
			return progressQuitMsg{}
		})

	case RenderFailed:
		m.failure = msg.Err
		m.phase = PhaseFailed
		return m, tea.Quit

	case progressQuitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.complete != nil || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the UI
func (m *Model) View() string {
	switch m.phase {
	case PhaseComplete:
		return m.renderComplete()
	case PhaseFailed:
		return ""
	}
	return m.renderProgress()
}

// CompletionSummary returns the final summary for printing once the
// program has exited, or "" when the render did not finish.
func (m *Model) CompletionSummary() string {
	if m.complete == nil {
		return ""
	}
	return m.renderComplete()
}

// Err returns the failure reported to the model, if any.
func (m *Model) Err() error {
	return m.failure
}

func (m *Model) renderProgress() string {
	var s strings.Builder

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(coolCyan).Render("Sonogram"))
	s.WriteString("  ")
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(m.inputFile))
	s.WriteString("\n\n")

	switch {
	case m.phase == PhaseDecoding:
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("Decoding audio..."))
		s.WriteString(fmt.Sprintf("  Elapsed: %s", formatDuration(time.Since(m.startTime))))
	case m.analysis.TotalFrames > 0:
		percent := float64(m.analysis.Frame) / float64(m.analysis.TotalFrames)
		s.WriteString("Frames:   ")
		s.WriteString(m.progressBar.ViewAs(percent))
		s.WriteString(fmt.Sprintf("  %3d%%\n\n", int(percent*100)))

		var eta time.Duration
		if percent > 0 {
			eta = time.Duration(float64(m.analysis.Elapsed)/percent) - m.analysis.Elapsed
		}
		s.WriteString(lipgloss.NewStyle().Faint(true).Render(
			fmt.Sprintf("Frame %d of %d  │  Elapsed: %s  │  ETA: %s",
				m.analysis.Frame, m.analysis.TotalFrames,
				formatDuration(m.analysis.Elapsed), formatDuration(eta))))
	default:
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("Input shorter than one frame, rendering blank canvas..."))
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(coolCyan).
		Padding(1, 2).
		Render(s.String())
}

func (m *Model) renderComplete() string {
	var s strings.Builder
	res := m.complete.Result

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(midGreen).Render("✓ Spectrogram Complete!"))
	s.WriteString("\n\n")

	dimLabel := lipgloss.NewStyle().Faint(true)
	s.WriteString(fmt.Sprintf("%s%s\n", dimLabel.Render("Output:    "), m.complete.OutputFile))
	if m.complete.ThumbnailFile != "" {
		s.WriteString(fmt.Sprintf("%s%s\n", dimLabel.Render("Thumbnail: "), m.complete.ThumbnailFile))
	}
	if res != nil {
		s.WriteString(fmt.Sprintf("%s%.2fs at %d Hz\n", dimLabel.Render("Audio:     "), res.Duration, res.SampleRate))
		s.WriteString(fmt.Sprintf("%s%d frames × %d bins → %dx%d\n",
			dimLabel.Render("Image:     "), res.Frames, res.Bins, res.Width, res.Height))
		if res.Empty {
			s.WriteString(lipgloss.NewStyle().Foreground(warmYell).Render("           input shorter than one frame, image is blank"))
			s.WriteString("\n")
		}
	}
	s.WriteString(fmt.Sprintf("%s%s\n\n", dimLabel.Render("Size:      "), formatBytes(m.complete.FileSize)))

	if res != nil {
		headerStyle := lipgloss.NewStyle().Bold(true).Foreground(coolCyan)
		labelStyle := lipgloss.NewStyle().Foreground(mutedGray)
		s.WriteString(headerStyle.Render("Stages"))
		s.WriteString("\n")

		total := m.complete.TotalTime
		if total <= 0 {
			total = res.Timings.Total()
		}
		totalMs := max(total.Milliseconds(), 1)

		stages := []struct {
			label string
			d     time.Duration
		}{
			{"Decode:", res.Timings.Decode},
			{"Transform:", res.Timings.Transform},
			{"Render:", res.Timings.Render},
			{"Encode:", res.Timings.Encode},
		}
		for _, st := range stages {
			ratio := float64(st.d.Milliseconds()) / float64(totalMs)
			s.WriteString(fmt.Sprintf("  %s%s (~%2d%%)  %s\n",
				labelStyle.Render(fmt.Sprintf("%-12s", st.label)),
				fmt.Sprintf("~%-6s", formatDuration(st.d)),
				int(ratio*100),
				m.summaryBar.ViewAs(min(ratio, 1))))
		}
		s.WriteString(fmt.Sprintf("  %s%s", labelStyle.Render(fmt.Sprintf("%-12s", "Total:")),
			lipgloss.NewStyle().Foreground(warmYell).Render(formatDuration(total))))
	}

	out := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(midGreen).
		Padding(1, 1).
		Render(s.String()) + "\n"

	if m.cachedPreview != "" {
		out += m.cachedPreview
	}
	return out
}

// Helper functions

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatBytes(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}
