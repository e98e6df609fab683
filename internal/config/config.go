package config

import "time"

// Audio settings
const (
	SampleRate = 44100 // Resampling target for the ffmpeg decoder
	FrameSize  = 2048  // Transform window length in samples
	HopSize    = 512   // Offset between consecutive frame starts
)

// Canvas settings
const (
	Width  = 800
	Height = 300

	// MaxCanvasPixels bounds width × height of any raster
	MaxCanvasPixels = 8192 * 8192
)

// Normalisation settings
const (
	FloorDB = -80.0 // Lowest level mapped onto the colour gradient
	Epsilon = 1e-10 // Keeps log10 finite on exact-zero ratios
)

// Appearance
const (
	// Background colour painted before any bin is drawn (#0B0B14)
	BackgroundR = 11
	BackgroundG = 11
	BackgroundB = 20

	// Caption text colour used by the CLI overlay (#F8F8F2)
	CaptionR = 248
	CaptionG = 248
	CaptionB = 242

	CaptionFontSize = 14.0
	CaptionMargin   = 8
)

// Service settings
const (
	DefaultAddr            = ":8080"
	DefaultMaxUploadBytes  = 50 << 20
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSessionIdle     = 30 * time.Minute
	DefaultMaxSessions     = 1024
	DefaultClassifierURL   = "http://localhost:5000"
	DefaultClassifyTimeout = 30 * time.Second
)

// Transform backends
const (
	TransformFFT   = "fft"
	TransformDFT   = "dft"
	TransformGonum = "gonum"
)

// Classifier modes
const (
	ClassifierSimulated = "simulated"
	ClassifierRemote    = "remote"
)

// LogLevel is the service log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the known levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the runtime configuration. Zero values fall back to the
// constants above via Defaults.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Spectrogram SpectrogramConfig `yaml:"spectrogram"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	LogLevel        LogLevel      `yaml:"log_level"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// SessionIdleTimeout drops sessions untouched for this long, unless a
	// run is still in flight.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	MaxSessions        int           `yaml:"max_sessions"`
}

// SpectrogramConfig configures the analysis and the output canvas.
type SpectrogramConfig struct {
	FrameSize  int    `yaml:"frame_size"`
	HopSize    int    `yaml:"hop_size"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Transform  string `yaml:"transform"`
	Background string `yaml:"background"`
}

// ClassifierConfig selects the fake/real classifier.
type ClassifierConfig struct {
	Mode    string        `yaml:"mode"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.SessionIdleTimeout == 0 {
		c.Server.SessionIdleTimeout = DefaultSessionIdle
	}
	if c.Server.MaxSessions == 0 {
		c.Server.MaxSessions = DefaultMaxSessions
	}
	if c.Spectrogram.FrameSize == 0 {
		c.Spectrogram.FrameSize = FrameSize
	}
	if c.Spectrogram.HopSize == 0 {
		c.Spectrogram.HopSize = HopSize
	}
	if c.Spectrogram.Width == 0 {
		c.Spectrogram.Width = Width
	}
	if c.Spectrogram.Height == 0 {
		c.Spectrogram.Height = Height
	}
	if c.Spectrogram.Transform == "" {
		c.Spectrogram.Transform = TransformFFT
	}
	if c.Classifier.Mode == "" {
		c.Classifier.Mode = ClassifierSimulated
	}
	if c.Classifier.URL == "" {
		c.Classifier.URL = DefaultClassifierURL
	}
	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = DefaultClassifyTimeout
	}
}

// GetBackgroundColor returns the configured background colour, or the
// built-in default when unset or unparsable.
func (s SpectrogramConfig) GetBackgroundColor() (uint8, uint8, uint8) {
	if s.Background != "" {
		if r, g, b, err := ParseHexColor(s.Background); err == nil {
			return r, g, b
		}
	}
	return BackgroundR, BackgroundG, BackgroundB
}
