package gifmaker

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ScaleFactor returns the size multiplier of frame i out of n.
// pulse uses the zoomOut ramp.
func ScaleFactor(anim ScaleAnimation, i, n int) float64 {
	progress := float64(i) / float64(max(n-1, 1))

	switch anim {
	case ScaleZoomInOut:
		return 0.7 + 0.3*math.Sin(progress*math.Pi)
	case ScaleZoomIn:
		return 1.0 - 0.5*progress
	case ScaleZoomOut, ScalePulse:
		return 0.7 + 0.3*progress
	default:
		return 1.0
	}
}

// ScaleInCanvas draws img at scale times its size, centered on a transparent canvas of
// the original size.
func ScaleInCanvas(img image.Image, scale float64) image.Image {
	if scale == 1.0 || img == nil {
		return img
	}

	b := img.Bounds()
	canvas := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	newW := int(math.Round(float64(b.Dx()) * scale))
	newH := int(math.Round(float64(b.Dy()) * scale))
	if newW < 1 || newH < 1 {
		return canvas
	}

	x := (b.Dx() - newW) / 2
	y := (b.Dy() - newH) / 2
	dst := image.Rect(x, y, x+newW, y+newH)

	draw.CatmullRom.Scale(canvas, dst, img, b, draw.Over, nil)
	return canvas
}
