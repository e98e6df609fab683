package spectrogram

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/argusdusty/gofft"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/linuxmatters/sonogram/internal/config"
)

// Transform computes the magnitude spectrum of one windowed frame.
// Implementations reuse internal buffers and are not safe for concurrent
// use.
type Transform interface {
	// Magnitudes writes Size()/2 values sqrt(re² + im²) for bins
	// [0, Size()/2) into dst and returns it. frame must hold Size() samples.
	Magnitudes(dst, frame []float64) []float64

	// Size returns the frame length the transform was built for.
	Size() int
}

// NewTransform builds the backend named by kind ("fft", "dft" or "gonum").
func NewTransform(kind string, size int) (Transform, error) {
	if size < 2 {
		return nil, fmt.Errorf("transform size must be at least 2, got %d", size)
	}

	switch kind {
	case config.TransformFFT, "":
		return NewFFT(size)
	case config.TransformDFT:
		return NewDFT(size), nil
	case config.TransformGonum:
		return NewGonumFFT(size), nil
	}
	return nil, fmt.Errorf("unknown transform %q", kind)
}

// DFT is the direct O(F²) transform evaluated over the lower half of the
// bins. Twiddle factors come from one table of F entries indexed by
// k·n mod F.
type DFT struct {
	size int
	cos  []float64
	sin  []float64
}

// NewDFT precomputes the twiddle table for frames of size samples.
func NewDFT(size int) *DFT {
	d := &DFT{
		size: size,
		cos:  make([]float64, size),
		sin:  make([]float64, size),
	}
	for j := 0; j < size; j++ {
		angle := -2 * math.Pi * float64(j) / float64(size)
		d.cos[j] = math.Cos(angle)
		d.sin[j] = math.Sin(angle)
	}
	return d
}

func (d *DFT) Size() int { return d.size }

func (d *DFT) Magnitudes(dst, frame []float64) []float64 {
	half := d.size / 2
	dst = resize(dst, half)

	for k := 0; k < half; k++ {
		var re, im float64
		idx := 0
		for _, x := range frame[:d.size] {
			re += x * d.cos[idx]
			im += x * d.sin[idx]
			idx += k
			if idx >= d.size {
				idx -= d.size
			}
		}
		dst[k] = math.Sqrt(re*re + im*im)
	}
	return dst
}

// FFT is a radix-2 transform backed by gofft. Size must be a power of two.
type FFT struct {
	size int
	buf  []complex128
}

// NewFFT allocates the complex work buffer for frames of size samples.
func NewFFT(size int) (*FFT, error) {
	if size <= 0 || bits.OnesCount(uint(size)) != 1 {
		return nil, fmt.Errorf("fft size must be a power of two, got %d", size)
	}
	return &FFT{size: size, buf: make([]complex128, size)}, nil
}

func (f *FFT) Size() int { return f.size }

func (f *FFT) Magnitudes(dst, frame []float64) []float64 {
	half := f.size / 2
	dst = resize(dst, half)

	if silent(frame[:f.size]) {
		clear(dst)
		return dst
	}

	for i, x := range frame[:f.size] {
		f.buf[i] = complex(x, 0)
	}
	// NewFFT validated the size; an error here means the buffer was
	// built some other way
	if err := gofft.FFT(f.buf); err != nil {
		panic(fmt.Sprintf("spectrogram: gofft rejected %d-point frame: %v", f.size, err))
	}

	for k := 0; k < half; k++ {
		re, im := real(f.buf[k]), imag(f.buf[k])
		dst[k] = math.Sqrt(re*re + im*im)
	}
	return dst
}

// GonumFFT is a real-input transform backed by gonum's dsp/fourier.
// Any size is accepted.
type GonumFFT struct {
	size   int
	fft    *fourier.FFT
	coeffs []complex128
}

// NewGonumFFT initialises gonum's work arrays for frames of size samples.
func NewGonumFFT(size int) *GonumFFT {
	return &GonumFFT{
		size:   size,
		fft:    fourier.NewFFT(size),
		coeffs: make([]complex128, size/2+1),
	}
}

func (g *GonumFFT) Size() int { return g.size }

func (g *GonumFFT) Magnitudes(dst, frame []float64) []float64 {
	half := g.size / 2
	dst = resize(dst, half)

	if silent(frame[:g.size]) {
		clear(dst)
		return dst
	}

	g.coeffs = g.fft.Coefficients(g.coeffs, frame[:g.size])
	for k := 0; k < half; k++ {
		re, im := real(g.coeffs[k]), imag(g.coeffs[k])
		dst[k] = math.Sqrt(re*re + im*im)
	}
	return dst
}

// silent reports whether every sample is zero. FFT rounding can leave
// tiny residues on silence, and silent frames must give exact zeros.
func silent(frame []float64) bool {
	for _, x := range frame {
		if x != 0 {
			return false
		}
	}
	return true
}
