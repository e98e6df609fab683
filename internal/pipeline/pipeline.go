// Package pipeline runs one audio file through decode, analysis, rendering
// and encoding, and keeps per-session display state safe against
// superseded runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linuxmatters/sonogram/internal/audio"
	"github.com/linuxmatters/sonogram/internal/config"
	"github.com/linuxmatters/sonogram/internal/observe"
	"github.com/linuxmatters/sonogram/internal/renderer"
	"github.com/linuxmatters/sonogram/internal/spectrogram"
)

// Opener returns a decoder for raw file bytes.
type Opener func(ctx context.Context, data []byte, mediaType string) (audio.Decoder, error)

// Options configures analysis and the output canvas.
type Options struct {
	FrameSize  int
	HopSize    int
	Transform  string
	Width      int
	Height     int
	Background color.RGBA

	// KeepRaster keeps the rendered image on Result.Raster instead of
	// returning the canvas to the pool.
	KeepRaster bool
}

// DefaultOptions uses the built-in constants.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Defaults().Spectrogram)
}

// OptionsFromConfig maps the spectrogram config section onto Options.
func OptionsFromConfig(cfg config.SpectrogramConfig) Options {
	r, g, b := cfg.GetBackgroundColor()
	return Options{
		FrameSize:  cfg.FrameSize,
		HopSize:    cfg.HopSize,
		Transform:  cfg.Transform,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Background: color.RGBA{R: r, G: g, B: b, A: 255},
	}
}

// Result is what a finished run hands to the display.
type Result struct {
	Image      string  `json:"image"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Frames     int     `json:"frames"`
	Bins       int     `json:"bins"`
	SampleRate int     `json:"sampleRate"`
	Duration   float64 `json:"duration"`
	Empty      bool    `json:"empty"`

	// Raster is set only with Options.KeepRaster.
	Raster *image.RGBA `json:"-"`

	Timings Timings `json:"-"`
}

// Timings holds the wall time spent in each stage of a run.
type Timings struct {
	Decode    time.Duration
	Transform time.Duration
	Render    time.Duration
	Encode    time.Duration
}

// Total sums the stage timings.
func (t Timings) Total() time.Duration {
	return t.Decode + t.Transform + t.Render + t.Encode
}

// Pipeline turns audio bytes into a spectrogram image. It holds no
// per-run state, so one Pipeline may serve concurrent runs.
type Pipeline struct {
	opts     Options
	open     Opener
	metrics  *observe.Metrics
	logger   *slog.Logger
	progress spectrogram.ProgressFunc
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithOpener replaces the decoder factory, audio.Open by default.
func WithOpener(open Opener) Option {
	return func(p *Pipeline) { p.open = open }
}

// WithMetrics records stage timings and run outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithProgress receives analysis progress for every run.
func WithProgress(fn spectrogram.ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// New validates opts and builds a Pipeline.
func New(opts Options, options ...Option) (*Pipeline, error) {
	// Fail on bad analysis settings now rather than on the first upload
	if _, err := spectrogram.NewAnalyzer(analyzerOptions(opts)); err != nil {
		return nil, fmt.Errorf("invalid analysis options: %w", err)
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.Width > renderer.MaxPixels/opts.Height {
		return nil, fmt.Errorf("%w: %dx%d", renderer.ErrRenderTargetUnavailable, opts.Width, opts.Height)
	}

	p := &Pipeline{
		opts: opts,
		open: audio.Open,
	}
	for _, o := range options {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Options returns the settings the pipeline was built with.
func (p *Pipeline) Options() Options { return p.opts }

func analyzerOptions(o Options) spectrogram.Options {
	return spectrogram.Options{
		FrameSize: o.FrameSize,
		HopSize:   o.HopSize,
		Transform: o.Transform,
	}
}

// Run decodes data and renders its spectrogram. Cancellation is observed
// while decoding; the numeric stages run to completion once started. A
// buffer shorter than one frame yields a blank image with Empty set.
func (p *Pipeline) Run(ctx context.Context, data []byte, mediaType string) (res *Result, err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.Run")
	span.SetAttributes(
		attribute.String("media_type", mediaType),
		attribute.Int("bytes", len(data)),
	)
	log := observe.Logger(ctx, p.logger)

	defer func() {
		status := runStatus(res, err)
		p.metrics.RecordRun(ctx, status)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		log.Debug("run finished", "status", status)
	}()

	var timings Timings

	// Decode
	start := time.Now()
	buf, err := p.decode(ctx, data, mediaType)
	timings.Decode = time.Since(start)
	p.metrics.RecordStage(ctx, observe.StageDecode, timings.Decode)
	if err != nil {
		return nil, err
	}
	meta := buf.Metadata()
	log.Debug("decoded",
		"sample_rate", meta.SampleRate,
		"channels", meta.Channels,
		"samples", meta.NumSamples,
	)

	// Segment, window, transform, normalise
	start = time.Now()
	analyzer, err := spectrogram.NewAnalyzer(analyzerOptions(p.opts))
	if err != nil {
		return nil, err
	}
	spec := analyzer.Analyze(buf.First(), buf.SampleRate, p.progress)
	grid := spec.Normalized()
	timings.Transform = time.Since(start)
	p.metrics.RecordStage(ctx, observe.StageTransform, timings.Transform)

	if spec.Empty() {
		log.Warn("rendering blank spectrogram",
			"error", fmt.Errorf("%w: %d samples, frame size %d", ErrEmptyInput, buf.Len(), p.opts.FrameSize))
	}

	// Render
	start = time.Now()
	canvas, err := renderer.NewCanvas(p.opts.Width, p.opts.Height, p.opts.Background)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	canvas.Render(grid)
	timings.Render = time.Since(start)
	p.metrics.RecordStage(ctx, observe.StageRender, timings.Render)

	// Encode
	start = time.Now()
	uri, err := renderer.DataURI(canvas.Image())
	timings.Encode = time.Since(start)
	p.metrics.RecordStage(ctx, observe.StageEncode, timings.Encode)
	if err != nil {
		canvas.Release()
		return nil, err
	}

	res = &Result{
		Image:      uri,
		Width:      canvas.Width(),
		Height:     canvas.Height(),
		Frames:     spec.Len(),
		Bins:       spec.Bins,
		SampleRate: meta.SampleRate,
		Duration:   meta.Duration,
		Empty:      spec.Empty(),
		Timings:    timings,
	}
	if p.opts.KeepRaster {
		res.Raster = canvas.Image()
	} else {
		canvas.Release()
	}
	return res, nil
}

// decode opens and drains the decoder, closing it on every path.
func (p *Pipeline) decode(ctx context.Context, data []byte, mediaType string) (*audio.Buffer, error) {
	dec, err := p.open(ctx, data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	defer dec.Close()

	buf, err := audio.ReadAll(ctx, dec)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return buf, nil
}

func runStatus(res *Result, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observe.StatusCancelled
	case err != nil:
		return observe.StatusError
	case res != nil && res.Empty:
		return observe.StatusEmpty
	}
	return observe.StatusOK
}
