package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/linuxmatters/sonogram/internal/audio"
	"github.com/linuxmatters/sonogram/internal/audio/mock"
	"github.com/linuxmatters/sonogram/internal/observe"
	"github.com/linuxmatters/sonogram/internal/renderer"
	"github.com/linuxmatters/sonogram/internal/spectrogram"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// mockOpener serves dec regardless of the input bytes.
func mockOpener(dec *mock.Decoder) Opener {
	return func(ctx context.Context, data []byte, mediaType string) (audio.Decoder, error) {
		return dec, nil
	}
}

func newPipeline(t *testing.T, opts Options, options ...Option) *Pipeline {
	t.Helper()
	p, err := New(opts, options...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestRun_WAV(t *testing.T) {
	data := mock.WAV(t, 44100, mock.Sine(440, 44100, 44100, 0.5))
	p := newPipeline(t, DefaultOptions())

	res, err := p.Run(context.Background(), data, "audio/wav")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// floor((44100 - 2048) / 512)
	if res.Frames != 82 {
		t.Errorf("Frames = %d, want 82", res.Frames)
	}
	if res.Bins != 1024 {
		t.Errorf("Bins = %d, want 1024", res.Bins)
	}
	if res.Width != 800 || res.Height != 300 {
		t.Errorf("canvas = %dx%d, want 800x300", res.Width, res.Height)
	}
	if res.SampleRate != 44100 {
		t.Errorf("SampleRate = %d", res.SampleRate)
	}
	if math.Abs(res.Duration-1) > 1e-9 {
		t.Errorf("Duration = %v, want 1", res.Duration)
	}
	if res.Empty {
		t.Error("Empty = true for a one second file")
	}
	if res.Raster != nil {
		t.Error("Raster set without KeepRaster")
	}

	img, err := renderer.DecodeDataURI(res.Image)
	if err != nil {
		t.Fatalf("DecodeDataURI: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 800 || b.Dy() != 300 {
		t.Errorf("encoded image = %dx%d", b.Dx(), b.Dy())
	}
	t.Logf("data URI length: %d bytes", len(res.Image))
}

func TestRun_ShortInputIsBlank(t *testing.T) {
	dec := &mock.Decoder{Channels: [][]float64{mock.Sine(440, 44100, 1000, 0.5)}}

	var logs bytes.Buffer
	opts := DefaultOptions()
	opts.KeepRaster = true
	p := newPipeline(t, opts,
		WithOpener(mockOpener(dec)),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	res, err := p.Run(context.Background(), nil, "audio/wav")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Empty || res.Frames != 0 {
		t.Errorf("Empty = %v, Frames = %d; want blank", res.Empty, res.Frames)
	}

	bg := opts.Background
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			if got := res.Raster.RGBAAt(x, y); got != bg {
				t.Fatalf("pixel (%d,%d) = %v, want background %v", x, y, got, bg)
			}
		}
	}

	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, ErrEmptyInput.Error()) {
		t.Errorf("expected a warning wrapping ErrEmptyInput, got:\n%s", out)
	}
}

func TestRun_SilenceIsUniformBlue(t *testing.T) {
	for _, kind := range []string{"fft", "dft", "gonum"} {
		t.Run(kind, func(t *testing.T) {
			dec := &mock.Decoder{Channels: [][]float64{make([]float64, 10000)}}
			opts := DefaultOptions()
			opts.Transform = kind
			opts.KeepRaster = true
			p := newPipeline(t, opts, WithOpener(mockOpener(dec)))

			res, err := p.Run(context.Background(), nil, "audio/wav")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Frames != 15 {
				t.Fatalf("Frames = %d, want 15", res.Frames)
			}

			want := spectrogram.ColorAt(0)
			for y := 0; y < res.Height; y++ {
				for x := 0; x < res.Width; x++ {
					if got := res.Raster.RGBAAt(x, y); got != want {
						t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestRun_DecodeError(t *testing.T) {
	p := newPipeline(t, DefaultOptions())

	res, err := p.Run(context.Background(), []byte("definitely not audio"), "audio/wav")
	if res != nil {
		t.Error("result returned alongside a decode error")
	}
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	var de *audio.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *audio.DecodeError, got %T", err)
	}
}

func TestRun_ClosesDecoder(t *testing.T) {
	testCases := []struct {
		name    string
		dec     *mock.Decoder
		cancel  bool
		wantErr error
	}{
		{
			name: "success",
			dec:  &mock.Decoder{Channels: [][]float64{make([]float64, 4096)}},
		},
		{
			name:    "read failure",
			dec:     &mock.Decoder{Channels: [][]float64{make([]float64, 4096)}, ReadErr: errors.New("corrupt frame")},
			wantErr: audio.ErrDecode,
		},
		{
			name:    "cancelled",
			dec:     &mock.Decoder{Channels: [][]float64{make([]float64, 4096)}},
			cancel:  true,
			wantErr: context.Canceled,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newPipeline(t, DefaultOptions(), WithOpener(mockOpener(tc.dec)))

			ctx, cancel := context.WithCancel(context.Background())
			if tc.cancel {
				cancel()
			}
			defer cancel()

			_, err := p.Run(ctx, nil, "audio/wav")
			if tc.wantErr == nil && err != nil {
				t.Fatalf("Run: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if n := tc.dec.Closed(); n != 1 {
				t.Errorf("decoder closed %d times, want 1", n)
			}
		})
	}
}

func TestRun_Progress(t *testing.T) {
	dec := &mock.Decoder{Channels: [][]float64{make([]float64, 100000)}}

	var last, total int
	calls := 0
	p := newPipeline(t, DefaultOptions(),
		WithOpener(mockOpener(dec)),
		WithProgress(func(done, n int, elapsed time.Duration) {
			calls++
			last, total = done, n
		}),
	)

	if _, err := p.Run(context.Background(), nil, "audio/wav"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if total != 191 || last != 191 {
		t.Errorf("final progress = %d/%d, want 191/191", last, total)
	}
	if calls < 2 {
		t.Errorf("progress called %d times", calls)
	}
}

func TestRun_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	dec := &mock.Decoder{Channels: [][]float64{make([]float64, 8192)}}
	p := newPipeline(t, DefaultOptions(), WithOpener(mockOpener(dec)), WithMetrics(m))
	if _, err := p.Run(context.Background(), nil, "audio/wav"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	stages := map[string]bool{}
	runs := int64(0)
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch md.Name {
			case "sonogram.stage.duration":
				for _, dp := range md.Data.(metricdata.Histogram[float64]).DataPoints {
					v, _ := dp.Attributes.Value("stage")
					stages[v.AsString()] = true
				}
			case "sonogram.runs":
				for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
					runs += dp.Value
				}
			}
		}
	}

	for _, s := range []string{observe.StageDecode, observe.StageTransform, observe.StageRender, observe.StageEncode} {
		if !stages[s] {
			t.Errorf("no duration recorded for stage %q", s)
		}
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
}

func TestNew_RejectsBadOptions(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Options)
	}{
		{"hop equals frame", func(o *Options) { o.HopSize = o.FrameSize }},
		{"zero hop", func(o *Options) { o.HopSize = 0 }},
		{"fft needs power of two", func(o *Options) { o.FrameSize = 1000 }},
		{"unknown transform", func(o *Options) { o.Transform = "wavelet" }},
		{"zero width", func(o *Options) { o.Width = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.modify(&opts)
			if _, err := New(opts); err == nil {
				t.Error("expected an error")
			}
		})
	}

	for _, size := range [][2]int{{800, -1}, {renderer.MaxPixels, 2}, {8193, 8192}} {
		opts := DefaultOptions()
		opts.Width, opts.Height = size[0], size[1]
		if _, err := New(opts); !errors.Is(err, renderer.ErrRenderTargetUnavailable) {
			t.Errorf("%dx%d: expected ErrRenderTargetUnavailable, got %v", size[0], size[1], err)
		}
	}
}

func TestOptionsFromConfig_Background(t *testing.T) {
	opts := DefaultOptions()
	if opts.Background != (color.RGBA{R: 11, G: 11, B: 20, A: 255}) {
		t.Errorf("Background = %v", opts.Background)
	}
	if opts.FrameSize != 2048 || opts.HopSize != 512 || opts.Transform != "fft" {
		t.Errorf("unexpected defaults: %+v", opts)
	}
}
