package renderer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"github.com/linuxmatters/sonogram/internal/config"
	"github.com/linuxmatters/sonogram/internal/spectrogram"
)

// MaxPixels bounds the canvas allocation.
const MaxPixels = config.MaxCanvasPixels

// ErrRenderTargetUnavailable is returned when the drawing surface cannot
// be allocated.
var ErrRenderTargetUnavailable = errors.New("renderer: render target unavailable")

// Canvases of the same size are recycled between runs.
var canvasPool sync.Pool

// Canvas is the single-writer raster a spectrogram is painted onto.
type Canvas struct {
	img *image.RGBA
	bg  color.RGBA

	// 8-pixel background pattern for fast clearing
	bgPattern [32]byte
}

// NewCanvas allocates a width × height canvas painted with bg.
func NewCanvas(width, height int, bg color.RGBA) (*Canvas, error) {
	if width <= 0 || height <= 0 || width > MaxPixels/height {
		return nil, fmt.Errorf("%w: %dx%d", ErrRenderTargetUnavailable, width, height)
	}

	var img *image.RGBA
	if pooled, ok := canvasPool.Get().(*image.RGBA); ok {
		if b := pooled.Bounds(); b.Dx() == width && b.Dy() == height {
			img = pooled
		}
	}
	if img == nil {
		img = image.NewRGBA(image.Rect(0, 0, width, height))
	}

	bg.A = 255
	c := &Canvas{img: img, bg: bg}
	for i := 0; i < len(c.bgPattern); i += 4 {
		c.bgPattern[i] = bg.R
		c.bgPattern[i+1] = bg.G
		c.bgPattern[i+2] = bg.B
		c.bgPattern[i+3] = 255
	}
	c.Clear()
	return c, nil
}

// Width returns the canvas width in pixels.
func (c *Canvas) Width() int { return c.img.Rect.Dx() }

// Height returns the canvas height in pixels.
func (c *Canvas) Height() int { return c.img.Rect.Dy() }

// Image returns the underlying raster. It stays owned by the canvas until
// Release.
func (c *Canvas) Image() *image.RGBA { return c.img }

// Background returns the fill colour.
func (c *Canvas) Background() color.RGBA { return c.bg }

// Clear paints the whole canvas with the background colour.
func (c *Canvas) Clear() {
	pix := c.img.Pix
	n := len(pix) - len(pix)%len(c.bgPattern)
	for i := 0; i < n; i += len(c.bgPattern) {
		copy(pix[i:i+len(c.bgPattern)], c.bgPattern[:])
	}
	// Tail shorter than one pattern
	copy(pix[n:], c.bgPattern[:len(pix)-n])
}

// Render clears the canvas and paints grid, a time × frequency array of
// values in [0, 1]. Bin 0 lands at the bottom. Each cell covers
// ceil(scale)+1 pixels per axis so float scales leave no gaps; later cells
// overwrite earlier ones where they overlap. An empty grid leaves the
// canvas blank.
func (c *Canvas) Render(grid [][]float64) {
	c.Clear()

	frames := len(grid)
	if frames == 0 || len(grid[0]) == 0 {
		return
	}
	bins := len(grid[0])

	width, height := float64(c.Width()), float64(c.Height())
	xScale := width / float64(frames)
	yScale := height / float64(bins)
	cellW := int(math.Ceil(xScale)) + 1
	cellH := int(math.Ceil(yScale)) + 1

	src := &image.Uniform{}
	for x, column := range grid {
		x0 := int(math.Floor(float64(x) * xScale))
		for y, v := range column {
			y0 := int(math.Floor(height - float64(y)*yScale - yScale))
			src.C = spectrogram.ColorAt(v)
			// draw.Draw clips the rectangle to the canvas
			draw.Draw(c.img, image.Rect(x0, y0, x0+cellW, y0+cellH), src, image.Point{}, draw.Src)
		}
	}
}

// Release returns the raster to the pool. The canvas must not be used
// afterwards.
func (c *Canvas) Release() {
	if c.img != nil {
		canvasPool.Put(c.img)
		c.img = nil
	}
}
