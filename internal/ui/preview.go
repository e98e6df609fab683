package ui

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

// PreviewConfig holds the terminal preview size in cells
type PreviewConfig struct {
	Width  int
	Height int
}

// DefaultPreviewConfig returns a size matching the 8:3 canvas. Each cell
// shows two pixel rows, so 72x14 cells cover a 72x28 image.
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{
		Width:  72,
		Height: 14,
	}
}

// DownsampleImage scales img to the preview grid. The result has two
// pixel rows per terminal cell.
func DownsampleImage(img image.Image, config PreviewConfig) *image.RGBA {
	if config.Width <= 0 || config.Height <= 0 {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, config.Width, config.Height*2))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// RenderPreview draws a downsampled image with 24-bit ANSI colour. Each
// cell is an upper half block: foreground is the top pixel, background
// the bottom one.
func RenderPreview(preview *image.RGBA, title string) string {
	if preview == nil {
		return ""
	}
	b := preview.Bounds()
	width := b.Dx()

	var s strings.Builder
	if title != "" {
		s.WriteString("  " + title + "\n")
	}
	s.WriteString("  ┌" + strings.Repeat("─", width) + "┐\n")

	for y := b.Min.Y; y+1 < b.Max.Y; y += 2 {
		s.WriteString("  │")
		for x := b.Min.X; x < b.Max.X; x++ {
			top := preview.RGBAAt(x, y)
			bottom := preview.RGBAAt(x, y+1)
			fmt.Fprintf(&s, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀\x1b[0m",
				top.R, top.G, top.B, bottom.R, bottom.G, bottom.B)
		}
		s.WriteString("│\n")
	}

	s.WriteString("  └" + strings.Repeat("─", width) + "┘\n")
	return s.String()
}

// Preview downsamples and renders img in one step.
func Preview(img image.Image, config PreviewConfig, title string) string {
	return RenderPreview(DownsampleImage(img, config), title)
}
