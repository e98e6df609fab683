package renderer

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// Thumbnail scales src to width × height with bilinear interpolation.
func Thumbnail(src image.Image, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 || width > MaxPixels/height {
		return nil, fmt.Errorf("%w: thumbnail %dx%d", ErrRenderTargetUnavailable, width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	bounds := src.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		// Already the right size, just copy
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
		return dst, nil
	}

	draw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst, nil
}

// ParseSize parses a "WIDTHxHEIGHT" string such as "320x120".
func ParseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q: want WIDTHxHEIGHT", s)
	}

	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return w, h, nil
}
