// Package imagefx holds the colour and compositing operations applied to stickers and
// GIF frames. Every operation keeps the alpha channel of its input.
package imagefx

import (
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

type Preset string

const (
	PresetNone    Preset = "none"
	PresetNoir    Preset = "noir"
	PresetChrome  Preset = "chrome"
	PresetFade    Preset = "fade"
	PresetInstant Preset = "instant"
	PresetMono    Preset = "mono"
	PresetTonal   Preset = "tonal"
)

// Adjustments mirrors the editor sliders. Brightness is an offset in [-1,1]; Contrast and
// Saturation are multipliers in [0,2] where 1 leaves the image unchanged and 0 is read
// as "not set".
type Adjustments struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
	Preset     Preset  `json:"preset"`
}

func (a Adjustments) IsZero() bool {
	return a.Brightness == 0 &&
		(a.Contrast == 0 || a.Contrast == 1) &&
		(a.Saturation == 0 || a.Saturation == 1) &&
		(a.Preset == "" || a.Preset == PresetNone)
}

func (a Adjustments) Validate() error {
	if a.Brightness < -1 || a.Brightness > 1 {
		return errors.New("brightness must be within [-1, 1]")
	}
	if a.Contrast < 0 || a.Contrast > 2 {
		return errors.New("contrast must be within [0, 2]")
	}
	if a.Saturation < 0 || a.Saturation > 2 {
		return errors.New("saturation must be within [0, 2]")
	}
	switch a.Preset {
	case "", PresetNone, PresetNoir, PresetChrome, PresetFade, PresetInstant, PresetMono, PresetTonal:
		return nil
	}
	return errors.New("unknown preset " + string(a.Preset))
}

// Apply runs brightness, then contrast and saturation, then the preset.
func Apply(img image.Image, a Adjustments) image.Image {
	if img == nil || a.IsZero() {
		return img
	}

	out := imaging.Clone(img)
	if a.Brightness != 0 {
		out = imaging.AdjustBrightness(out, a.Brightness*100)
	}
	if a.Contrast != 0 && a.Contrast != 1 {
		out = imaging.AdjustContrast(out, (a.Contrast-1)*100)
	}
	if a.Saturation != 0 && a.Saturation != 1 {
		out = imaging.AdjustSaturation(out, (a.Saturation-1)*100)
	}
	return applyPreset(out, a.Preset)
}

func applyPreset(img *image.NRGBA, p Preset) *image.NRGBA {
	switch p {
	case PresetNoir:
		return imaging.AdjustContrast(imaging.Grayscale(img), 30)
	case PresetMono:
		return imaging.Grayscale(img)
	case PresetTonal:
		return imaging.AdjustContrast(imaging.Grayscale(img), -10)
	case PresetChrome:
		return imaging.AdjustContrast(imaging.AdjustSaturation(img, 30), 15)
	case PresetFade:
		faded := imaging.AdjustContrast(imaging.AdjustSaturation(img, -30), -20)
		return imaging.AdjustBrightness(faded, 5)
	case PresetInstant:
		warm := imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: clampChannel(float64(c.R) * 1.06),
				G: clampChannel(float64(c.G) * 1.01),
				B: clampChannel(float64(c.B) * 0.90),
				A: c.A,
			}
		})
		return imaging.AdjustGamma(imaging.AdjustSaturation(warm, -10), 1.05)
	default:
		return img
	}
}

func clampChannel(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
