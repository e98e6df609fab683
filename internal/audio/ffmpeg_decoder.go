package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/linuxmatters/sonogram/internal/config"
)

const ffmpegBinary = "ffmpeg"

var (
	ffmpegOnce  sync.Once
	ffmpegFound bool
)

// FFmpegAvailable reports whether an ffmpeg binary is on PATH.
func FFmpegAvailable() bool {
	ffmpegOnce.Do(func() {
		_, err := exec.LookPath(ffmpegBinary)
		ffmpegFound = err == nil
	})
	return ffmpegFound
}

// FFmpegDecoder implements Decoder by piping data through an ffmpeg
// subprocess. Only the first channel is extracted, as 32-bit float PCM
// resampled to config.SampleRate.
type FFmpegDecoder struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr *bytes.Buffer
	cancel context.CancelFunc
	buf    []byte
	done   bool
}

// NewFFmpegDecoder starts ffmpeg reading data on stdin. The process is
// killed when ctx is cancelled or Close is called.
func NewFFmpegDecoder(ctx context.Context, data []byte) (*FFmpegDecoder, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, ffmpegBinary,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-af", "pan=mono|c0=c0",
		"-ar", strconv.Itoa(config.SampleRate),
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &FFmpegDecoder{
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, 64*1024),
		stderr: stderr,
		cancel: cancel,
	}, nil
}

// ReadChunk reads the next chunk of samples
func (d *FFmpegDecoder) ReadChunk(n int) ([][]float64, error) {
	if d.done {
		return nil, io.EOF
	}

	size := n * 4
	if cap(d.buf) < size {
		d.buf = make([]byte, size)
	}
	buf := d.buf[:size]

	read, err := io.ReadFull(d.reader, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read ffmpeg output: %w", err)
	}

	count := read / 4
	if count == 0 {
		d.done = true
		if werr := d.wait(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	}

	samples := make([]float64, count)
	for i := range samples {
		samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
	}
	return [][]float64{samples}, nil
}

func (d *FFmpegDecoder) wait() error {
	if d.cmd == nil {
		return nil
	}
	err := d.cmd.Wait()
	d.cmd = nil
	if err != nil {
		msg := strings.TrimSpace(d.stderr.String())
		if msg == "" {
			return fmt.Errorf("ffmpeg: %w", err)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return nil
}

// SampleRate returns the resampling target
func (d *FFmpegDecoder) SampleRate() int {
	return config.SampleRate
}

// NumChannels is always 1; the pan filter keeps only the first channel
func (d *FFmpegDecoder) NumChannels() int {
	return 1
}

// Close kills ffmpeg if it is still running and reaps it
func (d *FFmpegDecoder) Close() error {
	d.cancel()
	if d.cmd != nil {
		// Exit status after a kill carries no information
		_ = d.cmd.Wait()
		d.cmd = nil
	}
	d.buf = nil
	return nil
}
