package gifmaker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"math"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// loopForever is the GIF89a Netscape loop count for endless playback.
const loopForever = 0

const transparentIndex = 0

// gifPalette is fully transparent at index 0, then the web-safe cube and a grey ramp.
var gifPalette = func() color.Palette {
	p := make(color.Palette, 0, 256)
	p = append(p, color.NRGBA{})
	p = append(p, palette.WebSafe...)
	for k := 1; len(p) < 256; k++ {
		v := uint8(math.Round(255 * float64(k) / 40))
		p = append(p, color.Gray{Y: v})
	}
	return p
}()

var opaquePalette = gifPalette[1:]

var errUnconvertible = errors.New("frame cannot be converted to a paletted image")

type Encoder struct {
	logger *zap.Logger
}

func NewEncoder(logger *zap.Logger) *Encoder {
	return &Encoder{logger: logger}
}

// MaxDelaySeconds is the longest per-frame delay the 16-bit GIF delay field holds.
const MaxDelaySeconds = float64(maxDelayCentiseconds) / 100

const maxDelayCentiseconds = math.MaxUint16

// DelayCentiseconds converts seconds to the GIF delay unit, clamped to [1, 65535].
func DelayCentiseconds(seconds float64) int {
	cs := math.Round(seconds * 100)
	switch {
	case cs < 1 || math.IsNaN(cs):
		return 1
	case cs > maxDelayCentiseconds:
		return maxDelayCentiseconds
	}
	return int(cs)
}

// Encode writes an infinitely looping GIF with the same delay on every frame. Frames
// that cannot be converted are skipped; zero written frames is an ErrEncoding. The
// returned DelaySeconds is the delay actually written, in whole centiseconds.
func (e *Encoder) Encode(ctx context.Context, frames []image.Image, delaySeconds float64) (*GifOutput, error) {
	if err := validateDelay(delaySeconds); err != nil {
		return nil, err
	}
	delay := DelayCentiseconds(delaySeconds)
	anim := &gif.GIF{LoopCount: loopForever}
	kept := make([]image.Image, 0, len(frames))
	width, height := 0, 0

	for i, img := range frames {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}

		p, err := toPaletted(img)
		if err != nil {
			e.logger.Warn("skipping frame that cannot be encoded", zap.Int("frame_position", i), zap.Error(err))
			continue
		}

		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, delay)
		anim.Disposal = append(anim.Disposal, gif.DisposalBackground)
		kept = append(kept, img)
		width = max(width, p.Rect.Dx())
		height = max(height, p.Rect.Dy())
	}

	if len(anim.Image) == 0 {
		return nil, fmt.Errorf("%w: no frames to write", ErrEncoding)
	}

	anim.Config = image.Config{ColorModel: gifPalette, Width: width, Height: height}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	return &GifOutput{
		Bytes:        buf.Bytes(),
		FrameCount:   len(anim.Image),
		Width:        width,
		Height:       height,
		DelaySeconds: float64(delay) / 100,
		Loop:         true,
		Frames:       kept,
	}, nil
}

// toPaletted quantizes img with Floyd-Steinberg dithering. Pixels under half opacity
// map to the transparent index; opaque pixels never do.
func toPaletted(img image.Image) (*image.Paletted, error) {
	if img == nil {
		return nil, errUnconvertible
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, errUnconvertible
	}

	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), gifPalette)
	draw.FloydSteinberg.Draw(dst, dst.Rect, img, b.Min)

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			_, _, _, a := c.RGBA()
			switch {
			case a < 0x8000:
				dst.SetColorIndex(x, y, transparentIndex)
			case dst.ColorIndexAt(x, y) == transparentIndex:
				dst.SetColorIndex(x, y, uint8(opaquePalette.Index(c)+1))
			}
		}
	}
	return dst, nil
}
