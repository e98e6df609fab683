// Package mock provides an in-memory [audio.Decoder] and WAV fixture
// helpers for unit tests.
//
// Decoder is safe for concurrent use. It records calls so tests can assert
// that the decoding context was released, and it can hold each chunk until
// the test releases it to simulate a slow decode.
package mock

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Decoder is a mock implementation of audio.Decoder serving Channels in
// chunks.
type Decoder struct {
	mu sync.Mutex

	// Channels holds the samples to serve, indexed by channel.
	Channels [][]float64

	// Rate is returned by SampleRate. Defaults to 44100 when zero.
	Rate int

	// Delay is slept before every ReadChunk.
	Delay time.Duration

	// Gate, when non-nil, must yield a value before each ReadChunk returns.
	Gate chan struct{}

	// ReadErr is returned by the first ReadChunk when set.
	ReadErr error

	// Started is closed on the first ReadChunk call when non-nil.
	Started chan struct{}

	pos            int
	startedClosed  bool
	CallCountRead  int
	CallCountClose int
}

// ReadChunk implements audio.Decoder.
func (d *Decoder) ReadChunk(n int) ([][]float64, error) {
	d.mu.Lock()
	d.CallCountRead++
	if d.Started != nil && !d.startedClosed {
		close(d.Started)
		d.startedClosed = true
	}
	gate, delay := d.Gate, d.Delay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ReadErr != nil {
		return nil, d.ReadErr
	}
	if len(d.Channels) == 0 || d.pos >= len(d.Channels[0]) {
		return nil, io.EOF
	}

	end := min(d.pos+n, len(d.Channels[0]))
	out := make([][]float64, len(d.Channels))
	for ch := range d.Channels {
		out[ch] = append([]float64(nil), d.Channels[ch][d.pos:end]...)
	}
	d.pos = end
	return out, nil
}

// SampleRate implements audio.Decoder.
func (d *Decoder) SampleRate() int {
	if d.Rate == 0 {
		return 44100
	}
	return d.Rate
}

// NumChannels implements audio.Decoder.
func (d *Decoder) NumChannels() int {
	return len(d.Channels)
}

// Close implements audio.Decoder and records the call.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return nil
}

// Closed reports how many times Close was called.
func (d *Decoder) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountClose
}

// Sine returns n samples of a sine at freq Hz with the given amplitude.
func Sine(freq float64, sampleRate, n int, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// WAV encodes channels as 16-bit PCM WAV bytes. The go-audio encoder
// needs a seekable writer, so the file goes through tb.TempDir.
func WAV(tb testing.TB, sampleRate int, channels ...[]float64) []byte {
	tb.Helper()

	if len(channels) == 0 {
		tb.Fatal("mock.WAV: no channels")
	}
	numChans := len(channels)
	frames := len(channels[0])

	data := make([]int, frames*numChans)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChans; ch++ {
			v := channels[ch][i]
			v = max(-1, min(1, v))
			data[i*numChans+ch] = int(math.Round(v * 32767))
		}
	}

	path := filepath.Join(tb.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("mock.WAV: create: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, numChans, 1)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: numChans, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		tb.Fatalf("mock.WAV: write: %v", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		tb.Fatalf("mock.WAV: close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		tb.Fatalf("mock.WAV: close file: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("mock.WAV: read back: %v", err)
	}
	return out
}
