package spectrogram

// FrameCount returns how many full frames of frameSize samples, spaced
// hopSize apart, fit in n samples: floor((n - frameSize) / hopSize).
// Partial trailing frames are dropped and invalid sizes yield zero.
func FrameCount(n, frameSize, hopSize int) int {
	if frameSize <= 0 || hopSize <= 0 || n < frameSize {
		return 0
	}
	return (n - frameSize) / hopSize
}

// Segment slices samples into overlapping frames. Frames are views into
// samples, not copies, so callers must not write to them.
func Segment(samples []float64, frameSize, hopSize int) [][]float64 {
	count := FrameCount(len(samples), frameSize, hopSize)
	frames := make([][]float64, count)
	for i := range frames {
		start := i * hopSize
		frames[i] = samples[start : start+frameSize : start+frameSize]
	}
	return frames
}
