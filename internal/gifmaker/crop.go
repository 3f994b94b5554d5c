package gifmaker

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"
)

// CropRect computes the centered window of the given width/height ratio inside a
// width x height image. A narrower target keeps the full height, otherwise the full
// width is kept. ok is false when no valid rectangle exists.
func CropRect(width, height int, ratio float64) (rect image.Rectangle, ok bool) {
	if width <= 0 || height <= 0 || ratio <= 0 || math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		return image.Rectangle{}, false
	}

	w, h := float64(width), float64(height)
	var newW, newH float64
	if ratio < w/h {
		newH = h
		newW = h * ratio
	} else {
		newW = w
		newH = w / ratio
	}

	x := (w - newW) / 2
	y := (h - newH) / 2

	x0 := int(math.Round(x))
	y0 := int(math.Round(y))
	cw := int(math.Round(newW))
	ch := int(math.Round(newH))
	if cw < 1 || ch < 1 {
		return image.Rectangle{}, false
	}

	rect = image.Rect(x0, y0, x0+cw, y0+ch)
	if !rect.In(image.Rect(0, 0, width, height)) {
		return image.Rectangle{}, false
	}
	return rect, true
}

type cropper struct {
	analyzer smartcrop.Analyzer
}

func newCropper() *cropper {
	return &cropper{analyzer: smartcrop.NewAnalyzer(lanczosResizer{})}
}

// crop cuts img to the aspect ratio. The second return is false when the original image
// was returned unchanged because the geometry was invalid.
func (c *cropper) crop(img image.Image, aspect AspectRatio, anchor CropAnchor) (image.Image, bool) {
	ratio, want := aspect.Ratio()
	if !want {
		return img, true
	}
	if img == nil {
		return img, false
	}

	src := img
	if src.Bounds().Min != (image.Point{}) {
		src = imaging.Clone(src)
	}
	b := src.Bounds()

	rect, ok := CropRect(b.Dx(), b.Dy(), ratio)
	if !ok {
		return img, false
	}

	if anchor == AnchorSmart {
		rect = c.placeSmart(src, rect)
	}

	out := imaging.Crop(src, rect)
	if out.Bounds().Dx() != rect.Dx() || out.Bounds().Dy() != rect.Dy() {
		return img, false
	}
	return out, true
}

// placeSmart keeps the size of rect and moves it to the most interesting area. Any
// analyzer failure leaves the centered placement.
func (c *cropper) placeSmart(img image.Image, rect image.Rectangle) image.Rectangle {
	best, err := c.analyzer.FindBestCrop(img, rect.Dx(), rect.Dy())
	if err != nil || best.Empty() {
		return rect
	}

	b := img.Bounds()
	moved := rect.Add(image.Pt(best.Min.X-rect.Min.X, best.Min.Y-rect.Min.Y))
	if moved.Max.X > b.Max.X {
		moved = moved.Sub(image.Pt(moved.Max.X-b.Max.X, 0))
	}
	if moved.Max.Y > b.Max.Y {
		moved = moved.Sub(image.Pt(0, moved.Max.Y-b.Max.Y))
	}
	if !moved.In(b) {
		return rect
	}
	return moved
}

type lanczosResizer struct{}

func (lanczosResizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), imaging.Lanczos)
}
