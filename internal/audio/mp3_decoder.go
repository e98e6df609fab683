package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces interleaved 16-bit little-endian stereo
const (
	mp3Channels      = 2
	mp3BytesPerFrame = 4
)

// MP3Decoder implements Decoder for MPEG-1/2 Layer III data
type MP3Decoder struct {
	decoder    *mp3.Decoder
	sampleRate int
	buf        []byte
}

// NewMP3Decoder creates a new MP3 decoder over data
func NewMP3Decoder(data []byte) (*MP3Decoder, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	return &MP3Decoder{
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
	}, nil
}

// ReadChunk reads the next chunk of samples
func (d *MP3Decoder) ReadChunk(n int) ([][]float64, error) {
	size := n * mp3BytesPerFrame
	if cap(d.buf) < size {
		d.buf = make([]byte, size)
	}
	buf := d.buf[:size]

	read, err := io.ReadFull(d.decoder, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read MP3 data: %w", err)
	}

	// A trailing partial frame is dropped
	frames := read / mp3BytesPerFrame
	if frames == 0 {
		return nil, io.EOF
	}

	left := make([]float64, frames)
	right := make([]float64, frames)
	for i := 0; i < frames; i++ {
		off := i * mp3BytesPerFrame
		left[i] = float64(int16(binary.LittleEndian.Uint16(buf[off:]))) / 32768.0
		right[i] = float64(int16(binary.LittleEndian.Uint16(buf[off+2:]))) / 32768.0
	}

	return [][]float64{left, right}, nil
}

// SampleRate returns the sample rate
func (d *MP3Decoder) SampleRate() int {
	return d.sampleRate
}

// NumChannels returns the number of audio channels
func (d *MP3Decoder) NumChannels() int {
	return mp3Channels
}

// Close releases the read buffer
func (d *MP3Decoder) Close() error {
	d.buf = nil
	return nil
}
