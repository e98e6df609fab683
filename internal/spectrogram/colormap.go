package spectrogram

import (
	"image/color"
	"math"
)

// ColorAt maps v in [0, 1] onto the blue → cyan → yellow → red gradient.
// Values outside the range are clamped first.
func ColorAt(v float64) color.RGBA {
	v = clamp01(v)

	var r, g, b float64
	switch {
	case v < 0.25:
		r, g, b = 0, 400*v, 255
	case v < 0.5:
		r, g, b = 0, 100+620*(v-0.25), 255-1020*(v-0.25)
	case v < 0.75:
		r, g, b = 1020*(v-0.5), 255, 0
	default:
		r, g, b = 255, 255-1020*(v-0.75), 0
	}

	return color.RGBA{R: channel(r), G: channel(g), B: channel(b), A: 255}
}

func channel(x float64) uint8 {
	x = math.Floor(x)
	switch {
	case x <= 0:
		return 0
	case x >= 255:
		return 255
	}
	return uint8(x)
}
