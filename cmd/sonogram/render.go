package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/sonogram/internal/audio"
	"github.com/linuxmatters/sonogram/internal/cli"
	"github.com/linuxmatters/sonogram/internal/config"
	"github.com/linuxmatters/sonogram/internal/pipeline"
	"github.com/linuxmatters/sonogram/internal/renderer"
	"github.com/linuxmatters/sonogram/internal/ui"
)

// RenderCmd renders one file to PNG with a live progress view.
type RenderCmd struct {
	Input  string `arg:"" name:"input" help:"Input audio file (.wav .mp3 .flac, others via ffmpeg)." type:"existingfile"`
	Output string `arg:"" name:"output" help:"Output PNG file."`

	Config    string `help:"YAML config file for spectrogram defaults." type:"path"`
	Width     int    `help:"Canvas width in pixels."`
	Height    int    `help:"Canvas height in pixels."`
	FrameSize int    `name:"frame-size" help:"Samples per analysis frame."`
	HopSize   int    `name:"hop-size" help:"Samples between frame starts."`
	Transform string `help:"Transform backend: fft, dft or gonum."`
	Thumbnail string `help:"Also write a scaled copy, e.g. 320x120." placeholder:"WxH"`
	Caption   string `help:"Text drawn in the top-left corner."`
	NoPreview bool   `name:"no-preview" help:"Disable the terminal preview when done."`
}

func (c *RenderCmd) Run() error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	opts.KeepRaster = true

	mediaType := audio.MediaTypeForFile(c.Input)
	if mediaType == "" {
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(c.Input))
	}
	data, err := os.ReadFile(c.Input)
	if err != nil {
		return err
	}

	var thumbW, thumbH int
	if c.Thumbnail != "" {
		if thumbW, thumbH, err = renderer.ParseSize(c.Thumbnail); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(c.Input, c.NoPreview)
	prog := tea.NewProgram(model, tea.WithContext(ctx))

	// The TUI owns the terminal, so pipeline logs are dropped
	p, err := pipeline.New(opts,
		pipeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		pipeline.WithProgress(func(done, total int, elapsed time.Duration) {
			prog.Send(ui.AnalysisProgress{Frame: done, TotalFrames: total, Elapsed: elapsed})
		}),
	)
	if err != nil {
		return err
	}

	type outcome struct {
		msg ui.RenderComplete
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		start := time.Now()
		msg, err := c.render(ctx, p, data, mediaType, thumbW, thumbH)
		if err != nil {
			prog.Send(ui.RenderFailed{Err: err})
			done <- outcome{err: err}
			return
		}
		msg.TotalTime = time.Since(start)
		prog.Send(msg)
		done <- outcome{msg: msg}
	}()

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running UI: %w", err)
	}

	// Quitting early abandons the run
	cancel()
	out := <-done
	if out.err != nil {
		if errors.Is(out.err, context.Canceled) {
			return errors.New("cancelled")
		}
		return out.err
	}
	if out.msg.Result != nil && out.msg.Result.Empty {
		cli.PrintWarning(fmt.Sprintf("%s is shorter than one %d-sample frame; wrote a blank image", c.Input, opts.FrameSize))
	}
	return nil
}

// options layers config file, then flags, over the built-in defaults.
func (c *RenderCmd) options() (pipeline.Options, error) {
	cfg := config.Defaults()
	if c.Config != "" {
		loaded, err := config.Load(c.Config)
		if err != nil {
			return pipeline.Options{}, err
		}
		cfg = loaded
	}

	s := &cfg.Spectrogram
	if c.Width > 0 {
		s.Width = c.Width
	}
	if c.Height > 0 {
		s.Height = c.Height
	}
	if c.FrameSize > 0 {
		s.FrameSize = c.FrameSize
	}
	if c.HopSize > 0 {
		s.HopSize = c.HopSize
	}
	if c.Transform != "" {
		s.Transform = c.Transform
	}
	if err := config.Validate(cfg); err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.OptionsFromConfig(*s), nil
}

func (c *RenderCmd) render(ctx context.Context, p *pipeline.Pipeline, data []byte, mediaType string, thumbW, thumbH int) (ui.RenderComplete, error) {
	res, err := p.Run(ctx, data, mediaType)
	if err != nil {
		return ui.RenderComplete{}, err
	}

	if c.Caption != "" {
		if err := renderer.Caption(res.Raster, strings.Split(c.Caption, `\n`)...); err != nil {
			return ui.RenderComplete{}, err
		}
	}
	if err := renderer.SavePNG(c.Output, res.Raster); err != nil {
		return ui.RenderComplete{}, err
	}

	msg := ui.RenderComplete{OutputFile: c.Output, Result: res}
	if info, err := os.Stat(c.Output); err == nil {
		msg.FileSize = info.Size()
	}

	if thumbW > 0 {
		thumb, err := renderer.Thumbnail(res.Raster, thumbW, thumbH)
		if err != nil {
			return ui.RenderComplete{}, err
		}
		msg.ThumbnailFile = thumbnailPath(c.Output)
		if err := renderer.SavePNG(msg.ThumbnailFile, thumb); err != nil {
			return ui.RenderComplete{}, err
		}
	}
	return msg, nil
}

// thumbnailPath turns "out.png" into "out.thumb.png".
func thumbnailPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".thumb.png"
}
