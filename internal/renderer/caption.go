package renderer

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/linuxmatters/sonogram/internal/config"
)

var (
	captionFontOnce sync.Once
	captionFont     *truetype.Font
	captionFontErr  error
)

func loadCaptionFont() (*truetype.Font, error) {
	captionFontOnce.Do(func() {
		captionFont, captionFontErr = truetype.Parse(goregular.TTF)
	})
	return captionFont, captionFontErr
}

// Caption draws lines of text in the top-left corner of img over a
// translucent backing box. Empty input is a no-op.
func Caption(img *image.RGBA, lines ...string) error {
	var text []string
	for _, l := range lines {
		if l != "" {
			text = append(text, l)
		}
	}
	if len(text) == 0 {
		return nil
	}

	f, err := loadCaptionFont()
	if err != nil {
		return fmt.Errorf("failed to parse caption font: %w", err)
	}

	face := truetype.NewFace(f, &truetype.Options{
		Size:    config.CaptionFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	defer face.Close()

	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	ascent := metrics.Ascent.Ceil()

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: config.CaptionR, G: config.CaptionG, B: config.CaptionB, A: 255}),
		Face: face,
	}

	// Size the backing box to the widest line
	var maxWidth int
	for _, l := range text {
		maxWidth = max(maxWidth, d.MeasureString(l).Ceil())
	}

	margin := config.CaptionMargin
	pad := margin / 2
	box := image.Rect(
		margin-pad,
		margin-pad,
		margin+maxWidth+pad,
		margin+lineHeight*len(text)+pad,
	)
	draw.Draw(img, box, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	for i, l := range text {
		d.Dot = freetype.Pt(margin, margin+ascent+i*lineHeight)
		d.DrawString(l)
	}
	return nil
}
