package config

import (
	"strings"
	"testing"
	"time"
)

// TestParseHexColor_ValidInputs verifies prefix handling, case insensitivity
// and byte ordering of ParseHexColor.
func TestParseHexColor_ValidInputs(t *testing.T) {
	testCases := []struct {
		input               string
		wantR, wantG, wantB uint8
	}{
		{"FF0000", 255, 0, 0},
		{"ff0000", 255, 0, 0},
		{"#FF0000", 255, 0, 0},
		{"Ff00fF", 255, 0, 255},
		{"#0B0B14", 11, 11, 20},
		{"010203", 1, 2, 3},
		{"AABBCC", 0xAA, 0xBB, 0xCC},
		{"FDFEFF", 253, 254, 255},
		{"000000", 0, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			r, g, b, err := ParseHexColor(tc.input)
			if err != nil {
				t.Fatalf("ParseHexColor(%q) returned error: %v", tc.input, err)
			}
			if r != tc.wantR || g != tc.wantG || b != tc.wantB {
				t.Errorf("ParseHexColor(%q) = (%d, %d, %d), want (%d, %d, %d)",
					tc.input, r, g, b, tc.wantR, tc.wantG, tc.wantB)
			}
		})
	}
}

// TestParseHexColor_InvalidInputs verifies that malformed colours are
// rejected rather than silently truncated.
func TestParseHexColor_InvalidInputs(t *testing.T) {
	inputs := []string{
		"", "#", "FFF", "#FFF", "FFFFFFF", "#FFFFFFF", "GGGGGG", "FF00GG",
		"FF 000", "FF#000", "##FF0000", "FF0000\n", "+FFFFF", "-FFFFF",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			if _, _, _, err := ParseHexColor(input); err == nil {
				t.Errorf("ParseHexColor(%q) expected error, got nil", input)
			}
		})
	}
}

func TestSpectrogramConfig_GetBackgroundColor(t *testing.T) {
	testCases := []struct {
		name                string
		background          string
		wantR, wantG, wantB uint8
	}{
		{"unset uses default", "", BackgroundR, BackgroundG, BackgroundB},
		{"override", "#102030", 0x10, 0x20, 0x30},
		{"invalid falls back", "nope", BackgroundR, BackgroundG, BackgroundB},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, g, b := SpectrogramConfig{Background: tc.background}.GetBackgroundColor()
			if r != tc.wantR || g != tc.wantG || b != tc.wantB {
				t.Errorf("GetBackgroundColor() = (%d, %d, %d), want (%d, %d, %d)",
					r, g, b, tc.wantR, tc.wantG, tc.wantB)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Spectrogram.FrameSize != 2048 || cfg.Spectrogram.HopSize != 512 {
		t.Errorf("frame/hop = %d/%d, want 2048/512", cfg.Spectrogram.FrameSize, cfg.Spectrogram.HopSize)
	}
	if cfg.Spectrogram.Width != 800 || cfg.Spectrogram.Height != 300 {
		t.Errorf("canvas = %dx%d, want 800x300", cfg.Spectrogram.Width, cfg.Spectrogram.Height)
	}
	if cfg.Spectrogram.Transform != TransformFFT {
		t.Errorf("transform = %q, want %q", cfg.Spectrogram.Transform, TransformFFT)
	}
	if cfg.Classifier.Mode != ClassifierSimulated {
		t.Errorf("classifier mode = %q, want %q", cfg.Classifier.Mode, ClassifierSimulated)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFromReader(t *testing.T) {
	yaml := `
server:
  addr: ":9090"
  log_level: debug
spectrogram:
  frame_size: 1024
  hop_size: 256
  transform: dft
  background: "#000000"
classifier:
  mode: remote
  url: http://classifier:5000
  timeout: 5s
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.Addr != ":9090" || cfg.Server.LogLevel != LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Spectrogram.FrameSize != 1024 || cfg.Spectrogram.HopSize != 256 {
		t.Errorf("frame/hop = %d/%d, want 1024/256", cfg.Spectrogram.FrameSize, cfg.Spectrogram.HopSize)
	}
	// Unset canvas dimensions fall back to defaults
	if cfg.Spectrogram.Width != Width || cfg.Spectrogram.Height != Height {
		t.Errorf("canvas = %dx%d, want defaults", cfg.Spectrogram.Width, cfg.Spectrogram.Height)
	}
	if cfg.Classifier.Timeout != 5*time.Second {
		t.Errorf("classifier timeout = %v, want 5s", cfg.Classifier.Timeout)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty): %v", err)
	}
	if cfg.Spectrogram.FrameSize != FrameSize {
		t.Errorf("frame size = %d, want %d", cfg.Spectrogram.FrameSize, FrameSize)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("spectrogram:\n  palette: viridis\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.LogLevel = "loud"
	cfg.Spectrogram.HopSize = cfg.Spectrogram.FrameSize
	cfg.Spectrogram.Transform = "wavelet"
	cfg.Classifier.Mode = "oracle"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}

	msg := err.Error()
	for _, want := range []string{"log_level", "hop_size", "transform", "classifier.mode"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidate_FFTNeedsPowerOfTwo(t *testing.T) {
	cfg := Defaults()
	cfg.Spectrogram.FrameSize = 1000
	cfg.Spectrogram.HopSize = 250

	if err := Validate(cfg); err == nil {
		t.Error("expected error for non power-of-two frame size with fft")
	}

	cfg.Spectrogram.Transform = TransformDFT
	if err := Validate(cfg); err != nil {
		t.Errorf("dft should accept frame size 1000: %v", err)
	}
}

func TestValidate_CanvasBound(t *testing.T) {
	testCases := []struct {
		name    string
		w, h    int
		wantErr bool
	}{
		{"default", Width, Height, false},
		{"at the limit", 8192, 8192, false},
		{"one row over", 8192, 8193, true},
		{"wide strip over", MaxCanvasPixels, 2, true},
		{"zero height", 800, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Spectrogram.Width, cfg.Spectrogram.Height = tc.w, tc.h
			err := Validate(cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate(%dx%d) error = %v, wantErr %v", tc.w, tc.h, err, tc.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "canvas") {
				t.Errorf("error %q does not mention the canvas", err)
			}
		})
	}
}

func TestValidate_SessionLimits(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.SessionIdleTimeout != DefaultSessionIdle || cfg.Server.MaxSessions != DefaultMaxSessions {
		t.Errorf("session defaults = %v / %d", cfg.Server.SessionIdleTimeout, cfg.Server.MaxSessions)
	}

	cfg.Server.SessionIdleTimeout = -time.Second
	cfg.Server.MaxSessions = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"session_idle_timeout", "max_sessions"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SONOGRAM_FRAME_SIZE", "4096")
	t.Setenv("SONOGRAM_TRANSFORM", "gonum")
	t.Setenv("SONOGRAM_CLASSIFIER_TIMEOUT", "2s")
	t.Setenv("SONOGRAM_WIDTH", "not-a-number")
	t.Setenv("SONOGRAM_SESSION_IDLE_TIMEOUT", "90s")
	t.Setenv("SONOGRAM_MAX_SESSIONS", "16")

	cfg := Defaults()
	ApplyEnv(cfg)

	if cfg.Spectrogram.FrameSize != 4096 {
		t.Errorf("frame size = %d, want 4096", cfg.Spectrogram.FrameSize)
	}
	if cfg.Spectrogram.Transform != TransformGonum {
		t.Errorf("transform = %q, want gonum", cfg.Spectrogram.Transform)
	}
	if cfg.Classifier.Timeout != 2*time.Second {
		t.Errorf("timeout = %v, want 2s", cfg.Classifier.Timeout)
	}
	if cfg.Spectrogram.Width != Width {
		t.Errorf("width = %d, want default %d for unparsable value", cfg.Spectrogram.Width, Width)
	}
	if cfg.Server.SessionIdleTimeout != 90*time.Second || cfg.Server.MaxSessions != 16 {
		t.Errorf("sessions = %v / %d, want 90s / 16", cfg.Server.SessionIdleTimeout, cfg.Server.MaxSessions)
	}
}
