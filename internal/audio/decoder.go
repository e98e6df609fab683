package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Decoder defines the interface for all audio format decoders
type Decoder interface {
	// ReadChunk reads up to n samples per channel, normalised to [-1, 1].
	// The outer slice is indexed by channel. Returns io.EOF when drained.
	ReadChunk(n int) ([][]float64, error)

	// SampleRate returns the audio sample rate in Hz
	SampleRate() int

	// NumChannels returns the number of audio channels (1=mono, 2=stereo)
	NumChannels() int

	// Close releases the decoding context
	Close() error
}

// Format identifies a container the package knows how to decode.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
	FormatFLAC
	// FormatOther is any audio type left to the ffmpeg subprocess.
	FormatOther
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatFLAC:
		return "flac"
	case FormatOther:
		return "other"
	}
	return "unknown"
}

var (
	// ErrDecode matches every DecodeError via errors.Is.
	ErrDecode = errors.New("audio: decode failed")

	// ErrUnsupportedFormat is wrapped by a DecodeError when no decoder
	// accepts the media type or the data.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// DecodeError reports malformed or unsupported audio data.
type DecodeError struct {
	MediaType string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.MediaType == "" {
		return fmt.Sprintf("audio: decode: %v", e.Err)
	}
	return fmt.Sprintf("audio: decode %s: %v", e.MediaType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) hold for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeErr(mediaType string, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{MediaType: mediaType, Err: err}
}

// Open returns a decoder for data. The declared media type picks the
// decoder; when it is missing or generic the leading bytes are sniffed.
func Open(ctx context.Context, data []byte, mediaType string) (Decoder, error) {
	if len(data) == 0 {
		return nil, decodeErr(mediaType, errors.New("empty input"))
	}

	format := Detect(data, mediaType)
	var (
		dec Decoder
		err error
	)
	switch format {
	case FormatWAV:
		dec, err = NewWAVDecoder(data)
		// Float and compressed WAV payloads are left to ffmpeg
		if errors.Is(err, ErrUnsupportedFormat) && FFmpegAvailable() {
			dec, err = NewFFmpegDecoder(ctx, data)
		}
	case FormatMP3:
		dec, err = NewMP3Decoder(data)
	case FormatFLAC:
		dec, err = NewFLACDecoder(data)
	case FormatOther:
		if !FFmpegAvailable() {
			return nil, decodeErr(mediaType, fmt.Errorf("%w: ffmpeg not found for %q", ErrUnsupportedFormat, mediaType))
		}
		dec, err = NewFFmpegDecoder(ctx, data)
	default:
		return nil, decodeErr(mediaType, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, decodeErr(mediaType, err)
	}
	return dec, nil
}

// Detect classifies data by magic bytes first, since browsers often send a
// vague or wrong type, then by declared media type.
func Detect(data []byte, mediaType string) Format {
	if f := sniff(data); f != FormatUnknown {
		return f
	}

	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return FormatWAV
	case "audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg-3":
		return FormatMP3
	case "audio/flac", "audio/x-flac":
		return FormatFLAC
	}
	if strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/") {
		return FormatOther
	}
	return FormatUnknown
}

func sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")):
		return FormatFLAC
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && data[1]&0x06 != 0:
		// MPEG audio frame sync with a non-reserved layer
		return FormatMP3
	}
	return FormatUnknown
}

// MediaTypeForFile maps a file extension to the media type a browser
// would declare for it.
func MediaTypeForFile(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".webm":
		return "audio/webm"
	}
	return ""
}
