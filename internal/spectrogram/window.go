package spectrogram

import "math"

// Window returns raised-cosine coefficients 0.54 - 0.46·cos(2πi/size).
// The edges fall to 0.08 of the centre weight.
func Window(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(size))
	}
	return w
}

// ApplyWindow multiplies frame by window elementwise into dst, which is
// grown as needed and returned. frame is left untouched.
func ApplyWindow(dst, frame, window []float64) []float64 {
	dst = resize(dst, len(frame))
	for i, x := range frame {
		dst[i] = x * window[i]
	}
	return dst
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
