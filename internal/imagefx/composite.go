package imagefx

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// CompositeOptions places the foreground on the background. Scale multiplies the
// foreground size (0 means 1). Offsets move it from the centre by a percentage of the
// background size, within [-50, 50].
type CompositeOptions struct {
	Scale          float64 `json:"scale"`
	OffsetXPercent float64 `json:"offset_x_percent"`
	OffsetYPercent float64 `json:"offset_y_percent"`
}

func (o CompositeOptions) Validate() error {
	if o.Scale < 0 || o.Scale > 5 {
		return errors.New("scale must be within (0, 5]")
	}
	if math.Abs(o.OffsetXPercent) > 50 || math.Abs(o.OffsetYPercent) > 50 {
		return errors.New("offsets must be within [-50, 50] percent")
	}
	return nil
}

// ForegroundRect returns where the scaled foreground lands on a background of bgSize.
func ForegroundRect(fgSize, bgSize image.Point, o CompositeOptions) image.Rectangle {
	scale := o.Scale
	if scale == 0 {
		scale = 1
	}
	w := int(math.Round(float64(fgSize.X) * scale))
	h := int(math.Round(float64(fgSize.Y) * scale))

	offX := float64(bgSize.X) * o.OffsetXPercent / 100
	offY := float64(bgSize.Y) * o.OffsetYPercent / 100
	x := int(math.Round(float64(bgSize.X-w)/2 + offX))
	y := int(math.Round(float64(bgSize.Y-h)/2 + offY))
	return image.Rect(x, y, x+w, y+h)
}

// Composite draws fg over bg with alpha blending. The result has the size of bg.
func Composite(fg, bg image.Image, o CompositeOptions) *image.NRGBA {
	bgSize := bg.Bounds().Size()
	rect := ForegroundRect(fg.Bounds().Size(), bgSize, o)

	placed := fg
	if rect.Size() != fg.Bounds().Size() && rect.Dx() > 0 && rect.Dy() > 0 {
		placed = imaging.Resize(fg, rect.Dx(), rect.Dy(), imaging.Lanczos)
	}

	base := imaging.Clone(bg)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return base
	}
	return imaging.Overlay(base, placed, rect.Min, 1.0)
}
