package config

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies SONOGRAM_*
// environment overrides and returns a validated Config. An empty path yields
// the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()

		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	ApplyEnv(cfg)
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. Environment overrides are not applied.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg fields from SONOGRAM_* environment variables.
// Unparsable numeric values are ignored.
func ApplyEnv(cfg *Config) {
	cfg.Server.Addr = envStr("SONOGRAM_ADDR", cfg.Server.Addr)
	cfg.Server.LogLevel = LogLevel(envStr("SONOGRAM_LOG_LEVEL", string(cfg.Server.LogLevel)))
	cfg.Server.MaxUploadBytes = int64(envInt("SONOGRAM_MAX_UPLOAD_BYTES", int(cfg.Server.MaxUploadBytes)))
	cfg.Server.SessionIdleTimeout = envDuration("SONOGRAM_SESSION_IDLE_TIMEOUT", cfg.Server.SessionIdleTimeout)
	cfg.Server.MaxSessions = envInt("SONOGRAM_MAX_SESSIONS", cfg.Server.MaxSessions)

	cfg.Spectrogram.FrameSize = envInt("SONOGRAM_FRAME_SIZE", cfg.Spectrogram.FrameSize)
	cfg.Spectrogram.HopSize = envInt("SONOGRAM_HOP_SIZE", cfg.Spectrogram.HopSize)
	cfg.Spectrogram.Width = envInt("SONOGRAM_WIDTH", cfg.Spectrogram.Width)
	cfg.Spectrogram.Height = envInt("SONOGRAM_HEIGHT", cfg.Spectrogram.Height)
	cfg.Spectrogram.Transform = envStr("SONOGRAM_TRANSFORM", cfg.Spectrogram.Transform)
	cfg.Spectrogram.Background = envStr("SONOGRAM_BACKGROUND", cfg.Spectrogram.Background)

	cfg.Classifier.Mode = envStr("SONOGRAM_CLASSIFIER", cfg.Classifier.Mode)
	cfg.Classifier.URL = envStr("SONOGRAM_CLASSIFIER_URL", cfg.Classifier.URL)
	cfg.Classifier.Timeout = envDuration("SONOGRAM_CLASSIFIER_TIMEOUT", cfg.Classifier.Timeout)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.SessionIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.session_idle_timeout must not be negative, got %s", cfg.Server.SessionIdleTimeout))
	}
	if cfg.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions must not be negative, got %d", cfg.Server.MaxSessions))
	}

	s := cfg.Spectrogram
	if s.FrameSize < 2 {
		errs = append(errs, fmt.Errorf("spectrogram.frame_size must be at least 2, got %d", s.FrameSize))
	}
	if s.HopSize <= 0 || s.HopSize >= s.FrameSize {
		errs = append(errs, fmt.Errorf("spectrogram.hop_size must be in (0, frame_size), got %d", s.HopSize))
	}
	switch {
	case s.Width <= 0 || s.Height <= 0:
		errs = append(errs, fmt.Errorf("spectrogram canvas must be positive, got %dx%d", s.Width, s.Height))
	case s.Width > MaxCanvasPixels/s.Height:
		errs = append(errs, fmt.Errorf("spectrogram canvas %dx%d exceeds %d pixels", s.Width, s.Height, MaxCanvasPixels))
	}
	switch s.Transform {
	case TransformFFT:
		if s.FrameSize > 0 && bits.OnesCount(uint(s.FrameSize)) != 1 {
			errs = append(errs, fmt.Errorf("spectrogram.frame_size %d must be a power of two for transform %q", s.FrameSize, s.Transform))
		}
	case TransformDFT, TransformGonum:
	default:
		errs = append(errs, fmt.Errorf("spectrogram.transform %q is invalid; valid values: fft, dft, gonum", s.Transform))
	}
	if s.Background != "" {
		if _, _, _, err := ParseHexColor(s.Background); err != nil {
			errs = append(errs, fmt.Errorf("spectrogram.background: %w", err))
		}
	}

	switch cfg.Classifier.Mode {
	case ClassifierSimulated:
	case ClassifierRemote:
		if cfg.Classifier.URL == "" {
			errs = append(errs, errors.New("classifier.url is required when classifier.mode is remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("classifier.mode %q is invalid; valid values: simulated, remote", cfg.Classifier.Mode))
	}

	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
