package classify

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/linuxmatters/sonogram/internal/audio"
)

// Simulated derives a stable verdict from a hash of the file bytes. It is
// what the service uses when no inference backend is configured.
type Simulated struct{}

// NewSimulated returns the offline classifier.
func NewSimulated() *Simulated { return &Simulated{} }

// Classify decodes data for its duration and sample rate, then picks the
// label and a confidence in [70, 99] from an FNV-1a hash.
func (s *Simulated) Classify(ctx context.Context, fileName string, data []byte) (*Result, error) {
	if !hasAllowedExtension(fileName) {
		return nil, fmt.Errorf("unsupported file format %q", fileName)
	}

	buf, err := audio.Decode(ctx, data, audio.MediaTypeForFile(fileName))
	if err != nil {
		return nil, fmt.Errorf("failed to load audio file: %w", err)
	}
	meta := buf.Metadata()

	h := fnv.New64a()
	h.Write(data)
	sum := h.Sum64()

	isFake := sum&1 == 1
	confidence := 70 + float64((sum>>1)%2900)/100

	probs := Probabilities{Fake: round2(100 - confidence), Real: round2(confidence)}
	if isFake {
		probs.Fake, probs.Real = probs.Real, probs.Fake
	}

	r := &Result{
		IsFake:        isFake,
		Confidence:    round2(confidence),
		Probabilities: probs,
		Features:      Features(isFake),
		FileName:      fileName,
		Duration:      round2(meta.Duration),
		SampleRate:    meta.SampleRate,
	}
	stamp(r, data)
	return r, nil
}

// Health always succeeds.
func (s *Simulated) Health(ctx context.Context) error { return nil }
