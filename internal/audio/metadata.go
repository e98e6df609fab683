package audio

// Metadata holds information about a decoded buffer
type Metadata struct {
	SampleRate int
	Channels   int
	NumSamples int64
	Duration   float64 // in seconds
}

// Metadata describes b. Duration is zero when the sample rate is unknown.
func (b *Buffer) Metadata() Metadata {
	m := Metadata{
		SampleRate: b.SampleRate,
		Channels:   len(b.Channels),
		NumSamples: int64(b.Len()),
	}
	if b.SampleRate > 0 {
		m.Duration = float64(m.NumSamples) / float64(b.SampleRate)
	}
	return m
}
