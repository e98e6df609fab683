package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// FLACDecoder implements Decoder for FLAC streams
type FLACDecoder struct {
	stream      *flac.Stream
	sampleRate  int
	numChannels int

	// Samples decoded from the last FLAC frame but not yet returned
	pending [][]int32
	bits    uint8
}

// NewFLACDecoder parses the signature and StreamInfo block of data
func NewFLACDecoder(data []byte) (*FLACDecoder, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create FLAC decoder: %w", err)
	}

	info := stream.Info
	if info == nil || info.NChannels == 0 || info.SampleRate == 0 {
		stream.Close()
		return nil, errors.New("FLAC StreamInfo has no channels or sample rate")
	}

	return &FLACDecoder{
		stream:      stream,
		sampleRate:  int(info.SampleRate),
		numChannels: int(info.NChannels),
		bits:        info.BitsPerSample,
	}, nil
}

// ReadChunk reads the next chunk of samples
func (d *FLACDecoder) ReadChunk(n int) ([][]float64, error) {
	out := make([][]float64, d.numChannels)
	for ch := range out {
		out[ch] = make([]float64, 0, n)
	}

	for len(out[0]) < n {
		if len(d.pending) == 0 || len(d.pending[0]) == 0 {
			frame, err := d.stream.ParseNext()
			if err != nil {
				if err == io.EOF {
					break
				}
				return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
			}
			if len(frame.Subframes) < d.numChannels {
				return nil, fmt.Errorf("FLAC frame has %d subframes, want %d", len(frame.Subframes), d.numChannels)
			}
			d.pending = d.pending[:0]
			for ch := 0; ch < d.numChannels; ch++ {
				d.pending = append(d.pending, frame.Subframes[ch].Samples)
			}
			if frame.BitsPerSample != 0 {
				d.bits = frame.BitsPerSample
			}
		}

		// FLAC supports 4-32 bits per sample
		maxVal := float64(int64(1) << (d.bits - 1))
		take := min(n-len(out[0]), len(d.pending[0]))
		for ch := 0; ch < d.numChannels; ch++ {
			for _, s := range d.pending[ch][:take] {
				out[ch] = append(out[ch], float64(s)/maxVal)
			}
			d.pending[ch] = d.pending[ch][take:]
		}
	}

	if len(out[0]) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

// SampleRate returns the sample rate
func (d *FLACDecoder) SampleRate() int {
	return d.sampleRate
}

// NumChannels returns the number of audio channels
func (d *FLACDecoder) NumChannels() int {
	return d.numChannels
}

// Close closes the FLAC stream
func (d *FLACDecoder) Close() error {
	d.pending = nil
	if d.stream != nil {
		err := d.stream.Close()
		d.stream = nil
		return err
	}
	return nil
}
