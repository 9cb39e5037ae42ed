package cantucciaux

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/soypat/cantucci/gleval"
	"github.com/soypat/cantucci/glrender"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"
)

// SliceConfig configures [WriteSlicePNG].
type SliceConfig struct {
	// Height of the resulting image in pixels. Width is chosen to preserve the XY aspect ratio of the SDF bounds.
	Height int
	// Z is the height of the sliced plane.
	Z float32
	// Downsample evaluates the SDF over an image this many times smaller on each axis
	// which is then upscaled. Values under 1 are treated as 1.
	Downsample int
	// Conversion maps distances to colors. If nil a black and white conversion is used.
	Conversion func(float32) color.Color
	// Caption is drawn in the top-left corner of the image if not empty.
	Caption string
}

var captionFont = sync.OnceValues(func() (*truetype.Font, error) {
	return freetype.ParseFont(goregular.TTF)
})

// WriteSlicePNG renders the plane z=cfg.Z of s over the XY extent of its bounds and writes it as PNG to w.
func WriteSlicePNG(w io.Writer, s gleval.SDF3, cfg SliceConfig) error {
	if cfg.Height <= 0 {
		return errors.New("non-positive image height")
	}
	sz := s.Bounds().Size()
	if !(sz.X > 0 && sz.Y > 0) {
		return errors.New("SDF bounds have no XY extent")
	}
	width := max(1, int(float32(cfg.Height)*sz.X/sz.Y+0.5))
	down := max(1, cfg.Downsample)
	small := image.NewRGBA(image.Rect(0, 0, max(1, width/down), max(1, cfg.Height/down)))
	renderer, err := glrender.NewImageSliceRenderer(max(4096, small.Bounds().Dy()), cfg.Conversion)
	if err != nil {
		return err
	}
	err = renderer.RenderZ(s, cfg.Z, small, nil)
	if err != nil {
		return fmt.Errorf("rendering slice: %w", err)
	}
	img := small
	if down > 1 {
		img = image.NewRGBA(image.Rect(0, 0, width, cfg.Height))
		draw.CatmullRom.Scale(img, img.Bounds(), small, small.Bounds(), draw.Src, nil)
	}
	if cfg.Caption != "" {
		err = drawCaption(img, cfg.Caption)
		if err != nil {
			return err
		}
	}
	return png.Encode(w, img)
}

func drawCaption(img draw.Image, caption string) error {
	f, err := captionFont()
	if err != nil {
		return fmt.Errorf("parsing caption font: %w", err)
	}
	bounds := img.Bounds()
	size := max(8, float64(bounds.Dy())/24)
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(size)
	c.SetClip(bounds)
	c.SetDst(img)
	c.SetSrc(image.NewUniform(red))
	margin := int(size / 2)
	pt := freetype.Pt(bounds.Min.X+margin, bounds.Min.Y+margin+int(c.PointToFixed(size)>>6))
	_, err = c.DrawString(caption, pt)
	return err
}
