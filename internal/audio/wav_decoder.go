package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAVDecoder implements Decoder for integer PCM WAV data
type WAVDecoder struct {
	decoder    *wav.Decoder
	sampleRate int
	bitDepth   int
	numChans   int
	intBuf     *audio.IntBuffer
}

// NewWAVDecoder parses the RIFF header of data and positions the
// decoder at the first PCM sample.
func NewWAVDecoder(data []byte) (*WAVDecoder, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to seek to PCM data: %w", err)
	}

	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: WAV audio format %d", ErrUnsupportedFormat, decoder.WavAudioFormat)
	}
	if decoder.NumChans == 0 || decoder.SampleRate == 0 {
		return nil, errors.New("WAV header has no channels or sample rate")
	}

	return &WAVDecoder{
		decoder:    decoder,
		sampleRate: int(decoder.SampleRate),
		bitDepth:   int(decoder.BitDepth),
		numChans:   int(decoder.NumChans),
	}, nil
}

// ReadChunk reads the next chunk of samples
func (d *WAVDecoder) ReadChunk(n int) ([][]float64, error) {
	// Interleaved data needs n × numChans ints
	size := n * d.numChans
	if d.intBuf == nil || len(d.intBuf.Data) != size {
		d.intBuf = &audio.IntBuffer{
			Data: make([]int, size),
			Format: &audio.Format{
				NumChannels: d.numChans,
				SampleRate:  d.sampleRate,
			},
		}
	}

	read, err := d.decoder.PCMBuffer(d.intBuf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}

	frames := read / d.numChans
	if frames == 0 {
		return nil, io.EOF
	}

	// 8-bit WAV is unsigned with silence at 128; wider depths are signed
	offset, scale := 0.0, float64(audio.IntMaxSignedValue(d.bitDepth))
	if d.bitDepth == 8 {
		offset, scale = 128, 128
	}

	out := make([][]float64, d.numChans)
	for ch := range out {
		out[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < d.numChans; ch++ {
			out[ch][i] = (float64(d.intBuf.Data[i*d.numChans+ch]) - offset) / scale
		}
	}

	return out, nil
}

// SampleRate returns the sample rate
func (d *WAVDecoder) SampleRate() int {
	return d.sampleRate
}

// NumChannels returns the number of audio channels
func (d *WAVDecoder) NumChannels() int {
	return d.numChans
}

// Close drops the reference to the PCM buffer
func (d *WAVDecoder) Close() error {
	d.intBuf = nil
	return nil
}
