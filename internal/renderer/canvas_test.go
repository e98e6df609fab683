package renderer

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/linuxmatters/sonogram/internal/spectrogram"
)

var testBackground = color.RGBA{R: 11, G: 11, B: 20, A: 255}

func grid(frames, bins int, v float64) [][]float64 {
	g := make([][]float64, frames)
	for i := range g {
		g[i] = make([]float64, bins)
		for k := range g[i] {
			g[i][k] = v
		}
	}
	return g
}

func assertEveryPixel(t *testing.T, img *image.RGBA, want color.RGBA) {
	t.Helper()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if got := img.RGBAAt(x, y); got != want {
				t.Fatalf("pixel (%d, %d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestNewCanvas_Unavailable(t *testing.T) {
	testCases := []struct {
		name          string
		width, height int
	}{
		{"zero width", 0, 300},
		{"negative height", 800, -1},
		{"oversized", 100000, 100000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCanvas(tc.width, tc.height, testBackground)
			if !errors.Is(err, ErrRenderTargetUnavailable) {
				t.Errorf("expected ErrRenderTargetUnavailable, got %v", err)
			}
		})
	}
}

func TestCanvas_EmptyGridIsBackground(t *testing.T) {
	c, err := NewCanvas(800, 300, testBackground)
	if err != nil {
		t.Fatalf("NewCanvas: %v", err)
	}
	defer c.Release()

	c.Render(nil)
	assertEveryPixel(t, c.Image(), testBackground)

	// Zero bins behaves the same as zero frames
	c.Render([][]float64{{}})
	assertEveryPixel(t, c.Image(), testBackground)
}

func TestCanvas_SilenceCoversCanvas(t *testing.T) {
	testCases := []struct {
		name         string
		frames, bins int
		w, h         int
	}{
		{"reference shape", 191, 1024, 800, 300},
		{"few frames", 3, 7, 800, 300},
		{"fractional scales", 37, 113, 641, 257},
		{"more frames than pixels", 2000, 16, 800, 300},
	}

	want := spectrogram.ColorAt(0)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewCanvas(tc.w, tc.h, testBackground)
			if err != nil {
				t.Fatalf("NewCanvas: %v", err)
			}
			defer c.Release()

			c.Render(grid(tc.frames, tc.bins, 0))
			assertEveryPixel(t, c.Image(), want)
		})
	}
}

// TestCanvas_LowBinsAtBottom paints bin 0 red and everything else blue on
// a 2-bin grid. The lower half of the canvas must be red.
func TestCanvas_LowBinsAtBottom(t *testing.T) {
	c, err := NewCanvas(100, 100, testBackground)
	if err != nil {
		t.Fatalf("NewCanvas: %v", err)
	}
	defer c.Release()

	g := [][]float64{{1, 0}, {1, 0}}
	c.Render(g)

	img := c.Image()
	red := spectrogram.ColorAt(1)
	blue := spectrogram.ColorAt(0)

	if got := img.RGBAAt(50, 95); got != red {
		t.Errorf("bottom pixel = %v, want %v", got, red)
	}
	if got := img.RGBAAt(50, 5); got != blue {
		t.Errorf("top pixel = %v, want %v", got, blue)
	}
	// Bin 1 spans rows [0, 50) plus the one-pixel overlap, drawn after bin 0
	if got := img.RGBAAt(50, 50); got != blue {
		t.Errorf("overlap row = %v, want %v from the later cell", got, blue)
	}
	if got := img.RGBAAt(50, 52); got != red {
		t.Errorf("row below overlap = %v, want %v", got, red)
	}
}

func TestCanvas_RenderClearsPreviousRun(t *testing.T) {
	c, err := NewCanvas(64, 32, testBackground)
	if err != nil {
		t.Fatalf("NewCanvas: %v", err)
	}
	defer c.Release()

	c.Render(grid(8, 8, 1))
	c.Render(nil)
	assertEveryPixel(t, c.Image(), testBackground)
}

func TestCanvas_PoolReuseIsCleared(t *testing.T) {
	c, err := NewCanvas(40, 20, testBackground)
	if err != nil {
		t.Fatalf("NewCanvas: %v", err)
	}
	c.Render(grid(4, 4, 0.6))
	c.Release()

	other := color.RGBA{R: 1, G: 2, B: 3, A: 255}
	c2, err := NewCanvas(40, 20, other)
	if err != nil {
		t.Fatalf("NewCanvas: %v", err)
	}
	defer c2.Release()
	assertEveryPixel(t, c2.Image(), other)
}

func TestDataURI(t *testing.T) {
	c, err := NewCanvas(80, 30, testBackground)
	if err != nil {
		t.Fatalf("NewCanvas: %v", err)
	}
	defer c.Release()
	c.Render(grid(10, 10, 0.5))

	uri, err := DataURI(c.Image())
	if err != nil {
		t.Fatalf("DataURI: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("unexpected prefix: %.40s", uri)
	}

	img, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("DecodeDataURI: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 80 || b.Dy() != 30 {
		t.Errorf("decoded size = %dx%d, want 80x30", b.Dx(), b.Dy())
	}
	r, g, b, _ := img.At(40, 15).RGBA()
	want := spectrogram.ColorAt(0.5)
	if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
		t.Errorf("decoded pixel = (%d, %d, %d), want %v", r>>8, g>>8, b>>8, want)
	}
	t.Logf("data URI length: %d", len(uri))
}

func TestDecodeDataURI_Rejects(t *testing.T) {
	for _, uri := range []string{"", "data:image/jpeg;base64,AAAA", DataURIPrefix + "!!!", DataURIPrefix + "AAAA"} {
		if _, err := DecodeDataURI(uri); err == nil {
			t.Errorf("DecodeDataURI(%q) expected error", uri)
		}
	}
}

func BenchmarkCanvasRender(b *testing.B) {
	c, err := NewCanvas(800, 300, testBackground)
	if err != nil {
		b.Fatalf("NewCanvas: %v", err)
	}
	defer c.Release()

	g := grid(191, 1024, 0)
	for i := range g {
		for k := range g[i] {
			g[i][k] = float64((i+k)%100) / 100
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Render(g)
	}
}

func BenchmarkCanvasClear(b *testing.B) {
	c, err := NewCanvas(800, 300, testBackground)
	if err != nil {
		b.Fatalf("NewCanvas: %v", err)
	}
	defer c.Release()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Clear()
	}
}
