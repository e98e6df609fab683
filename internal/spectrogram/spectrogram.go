package spectrogram

import (
	"fmt"
	"time"
)

// Spectrogram is a time × frequency grid of linear magnitudes. Every entry
// of Frames has exactly Bins values.
type Spectrogram struct {
	Frames     [][]float64
	Bins       int
	FrameSize  int
	HopSize    int
	SampleRate int
}

// Len returns the number of frames.
func (s *Spectrogram) Len() int {
	return len(s.Frames)
}

// Empty reports whether the spectrogram has no frames.
func (s *Spectrogram) Empty() bool {
	return len(s.Frames) == 0
}

// BinFrequency returns the centre frequency of bin k in Hz.
func (s *Spectrogram) BinFrequency(k int) float64 {
	if s.FrameSize == 0 {
		return 0
	}
	return float64(k) * float64(s.SampleRate) / float64(s.FrameSize)
}

// MaxMagnitude returns the global peak used for normalisation.
func (s *Spectrogram) MaxMagnitude() float64 {
	return MaxMagnitude(s.Frames)
}

// Normalized returns the grid mapped onto [0, 1] against the global peak.
func (s *Spectrogram) Normalized() [][]float64 {
	return NormalizeAll(s.Frames)
}

// Options configures an Analyzer.
type Options struct {
	FrameSize int
	HopSize   int
	Transform string
}

// ProgressFunc is called with progress updates during analysis
type ProgressFunc func(done, total int, elapsed time.Duration)

// progressEvery throttles progress callbacks
const progressEvery = 16

// Analyzer turns a sample sequence into a Spectrogram. It owns the window
// coefficients and transform buffers, so one Analyzer serves one run at a
// time.
type Analyzer struct {
	frameSize int
	hopSize   int
	window    []float64
	transform Transform
	windowed  []float64
}

// NewAnalyzer validates opts and prepares the window and transform.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.FrameSize < 2 {
		return nil, fmt.Errorf("frame size must be at least 2, got %d", opts.FrameSize)
	}
	if opts.HopSize <= 0 || opts.HopSize >= opts.FrameSize {
		return nil, fmt.Errorf("hop size must be in (0, %d), got %d", opts.FrameSize, opts.HopSize)
	}

	transform, err := NewTransform(opts.Transform, opts.FrameSize)
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		frameSize: opts.FrameSize,
		hopSize:   opts.HopSize,
		window:    Window(opts.FrameSize),
		transform: transform,
		windowed:  make([]float64, opts.FrameSize),
	}, nil
}

// FrameSize returns the analysis frame length.
func (a *Analyzer) FrameSize() int { return a.frameSize }

// HopSize returns the offset between frame starts.
func (a *Analyzer) HopSize() int { return a.hopSize }

// Analyze segments samples, windows each frame and computes its magnitude
// spectrum. It runs to completion; progress may be nil.
func (a *Analyzer) Analyze(samples []float64, sampleRate int, progress ProgressFunc) *Spectrogram {
	frames := Segment(samples, a.frameSize, a.hopSize)
	spec := &Spectrogram{
		Frames:     make([][]float64, len(frames)),
		Bins:       a.frameSize / 2,
		FrameSize:  a.frameSize,
		HopSize:    a.hopSize,
		SampleRate: sampleRate,
	}

	start := time.Now()
	total := len(frames)
	for i, frame := range frames {
		a.windowed = ApplyWindow(a.windowed, frame, a.window)
		spec.Frames[i] = a.transform.Magnitudes(make([]float64, spec.Bins), a.windowed)

		if progress != nil && (i+1)%progressEvery == 0 {
			progress(i+1, total, time.Since(start))
		}
	}

	if progress != nil {
		progress(total, total, time.Since(start))
	}
	return spec
}
