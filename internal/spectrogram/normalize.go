package spectrogram

import (
	"math"

	"github.com/linuxmatters/sonogram/internal/config"
)

// MaxMagnitude returns the largest magnitude across every bin of every
// frame, or 0 for an empty grid.
func MaxMagnitude(frames [][]float64) float64 {
	var peak float64
	for _, frame := range frames {
		for _, m := range frame {
			if m > peak {
				peak = m
			}
		}
	}
	return peak
}

// Normalize maps magnitude m onto [0, 1] relative to maxMag:
// 20·log10(m/maxMag + ε) spread over the FloorDB..0 dB range. A zero maxMag
// (silence) maps everything to 0.
func Normalize(m, maxMag float64) float64 {
	var ratio float64
	if maxMag > 0 {
		ratio = m / maxMag
	}
	db := 20 * math.Log10(ratio+config.Epsilon)
	v := (db - config.FloorDB) / -config.FloorDB
	return clamp01(v)
}

// NormalizeAll returns a grid of normalised values with the same shape as
// frames, using the global maximum.
func NormalizeAll(frames [][]float64) [][]float64 {
	maxMag := MaxMagnitude(frames)
	out := make([][]float64, len(frames))
	for i, frame := range frames {
		row := make([]float64, len(frame))
		for k, m := range frame {
			row[k] = Normalize(m, maxMag)
		}
		out[i] = row
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v >= 0:
		return v
	}
	// Negative or NaN
	return 0
}
