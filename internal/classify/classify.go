// Package classify labels an audio file as fake or real. Simulated is a
// deterministic offline stand-in; Remote calls an inference service over
// HTTP.
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linuxmatters/sonogram/internal/config"
)

// Classifier labels one uploaded file.
type Classifier interface {
	Classify(ctx context.Context, fileName string, data []byte) (*Result, error)

	// Health reports whether the classifier can serve requests.
	Health(ctx context.Context) error
}

// Probabilities are percentages summing to 100.
type Probabilities struct {
	Fake float64 `json:"fake"`
	Real float64 `json:"real"`
}

// Result is the classification of one file.
type Result struct {
	IsFake        bool          `json:"isFake"`
	Confidence    float64       `json:"confidence"`
	Probabilities Probabilities `json:"probabilities"`
	Features      []string      `json:"features"`
	FileName      string        `json:"fileName"`
	FileSize      string        `json:"fileSize,omitempty"`
	Duration      float64       `json:"duration"`
	SampleRate    int           `json:"sampleRate"`
	AnalysisTime  string        `json:"analysisTime,omitempty"`
}

var (
	fakeFeatures = []string{
		"Anomalous frequency patterns detected",
		"Inconsistent spectral distribution",
		"Artificial noise characteristics identified",
		"Unnatural temporal patterns found",
	}
	realFeatures = []string{
		"Natural frequency distribution confirmed",
		"Consistent environmental acoustics",
		"Authentic noise characteristics",
		"Valid temporal patterns detected",
	}
)

// Features returns the findings reported for a label.
func Features(isFake bool) []string {
	if isFake {
		return append([]string(nil), fakeFeatures...)
	}
	return append([]string(nil), realFeatures...)
}

// AllowedExtensions lists the upload extensions the classifier accepts.
var AllowedExtensions = []string{".wav", ".mp3", ".flac", ".ogg", ".m4a", ".aac"}

// New builds the classifier selected by cfg.
func New(cfg config.ClassifierConfig) (Classifier, error) {
	switch cfg.Mode {
	case config.ClassifierSimulated, "":
		return NewSimulated(), nil
	case config.ClassifierRemote:
		return NewRemote(cfg.URL, WithTimeout(cfg.Timeout))
	}
	return nil, fmt.Errorf("unknown classifier mode %q", cfg.Mode)
}

// FormatSize renders a byte count as megabytes with two decimals.
func FormatSize(n int) string {
	return fmt.Sprintf("%.2f MB", float64(n)/1024/1024)
}

// stamp fills the client-side fields the service adds to every result.
func stamp(r *Result, data []byte) {
	r.FileSize = FormatSize(len(data))
	r.AnalysisTime = time.Now().Format(time.TimeOnly)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func hasAllowedExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range AllowedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
