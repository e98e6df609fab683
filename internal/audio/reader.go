package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ChunkSize is the number of samples per channel pulled from a decoder
// between cancellation checks.
const ChunkSize = 16384

// Buffer is a fully decoded sample buffer. It is not modified after
// ReadAll returns.
type Buffer struct {
	Channels   [][]float64
	SampleRate int
}

// First returns the first channel, or nil for an empty buffer.
func (b *Buffer) First() []float64 {
	if b == nil || len(b.Channels) == 0 {
		return nil
	}
	return b.Channels[0]
}

// Len returns the number of samples per channel.
func (b *Buffer) Len() int {
	return len(b.First())
}

// ReadAll drains dec into a Buffer, checking ctx between chunks. It does
// not close dec.
func ReadAll(ctx context.Context, dec Decoder) (*Buffer, error) {
	buf := &Buffer{
		Channels:   make([][]float64, dec.NumChannels()),
		SampleRate: dec.SampleRate(),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := dec.ReadChunk(ChunkSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, decodeErr("", fmt.Errorf("after %d samples: %w", buf.Len(), err))
		}

		if len(chunk) != len(buf.Channels) {
			return nil, decodeErr("", fmt.Errorf("decoder returned %d channels, want %d", len(chunk), len(buf.Channels)))
		}
		for ch := range chunk {
			buf.Channels[ch] = append(buf.Channels[ch], chunk[ch]...)
		}
	}

	return buf, nil
}

// Decode opens data, drains it and releases the decoder on every path.
func Decode(ctx context.Context, data []byte, mediaType string) (*Buffer, error) {
	dec, err := Open(ctx, data, mediaType)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return ReadAll(ctx, dec)
}
