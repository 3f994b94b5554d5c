package gifmaker

import (
	"image"
	"math"

	"github.com/yelerty/stickermaker/internal/imagefx"
)

// MediaSource points at a decodable video. Duration is in seconds; zero means unknown.
type MediaSource struct {
	URI      string
	Duration float64
}

// TimeRange is a half-open window [Start, End) in seconds.
type TimeRange struct {
	Start float64
	End   float64
}

func (r TimeRange) Length() float64 {
	return r.End - r.Start
}

// Validate checks 0 <= start < end <= duration. A zero duration skips the upper bound.
func (r TimeRange) Validate(duration float64) error {
	switch {
	case math.IsNaN(r.Start) || math.IsNaN(r.End):
		return &InputError{Field: "range", Reason: "bounds must be numbers"}
	case r.Start < 0:
		return &InputError{Field: "range", Reason: "start must not be negative"}
	case r.End <= r.Start:
		return &InputError{Field: "range", Reason: "end must be after start"}
	case duration > 0 && r.End > duration:
		return &InputError{Field: "range", Reason: "end exceeds media duration"}
	}
	return nil
}

// Frame is one sampled bitmap. Index is the position in the sampling plan and survives
// every later stage, so output order can be traced back to the sample time.
type Frame struct {
	Index int
	Time  float64
	Image image.Image
}

type AspectRatio string

const (
	AspectOriginal  AspectRatio = "original"
	AspectSquare    AspectRatio = "1:1"
	AspectFourThree AspectRatio = "4:3"
	AspectThreeFour AspectRatio = "3:4"
	AspectWide      AspectRatio = "16:9"
	AspectTall      AspectRatio = "9:16"
)

// Ratio returns width/height, or false when no crop should happen.
func (a AspectRatio) Ratio() (float64, bool) {
	switch a {
	case AspectSquare:
		return 1, true
	case AspectFourThree:
		return 4.0 / 3.0, true
	case AspectThreeFour:
		return 3.0 / 4.0, true
	case AspectWide:
		return 16.0 / 9.0, true
	case AspectTall:
		return 9.0 / 16.0, true
	default:
		return 0, false
	}
}

func (a AspectRatio) Valid() bool {
	if a == "" || a == AspectOriginal {
		return true
	}
	_, ok := a.Ratio()
	return ok
}

type CropAnchor string

const (
	AnchorCenter CropAnchor = "center"
	AnchorSmart  CropAnchor = "smart"
)

type ScaleAnimation string

const (
	ScaleNone      ScaleAnimation = "none"
	ScaleZoomInOut ScaleAnimation = "zoomInOut"
	ScaleZoomIn    ScaleAnimation = "zoomIn"
	ScaleZoomOut   ScaleAnimation = "zoomOut"
	ScalePulse     ScaleAnimation = "pulse"
)

func (s ScaleAnimation) Valid() bool {
	switch s {
	case "", ScaleNone, ScaleZoomInOut, ScaleZoomIn, ScaleZoomOut, ScalePulse:
		return true
	}
	return false
}

// TransformOptions is the per-run configuration of the Transformer.
type TransformOptions struct {
	AspectRatio      AspectRatio
	CropAnchor       CropAnchor
	RemoveBackground bool
	ScaleAnimation   ScaleAnimation
	Adjust           *imagefx.Adjustments
}

func (o TransformOptions) validate() error {
	if !o.AspectRatio.Valid() {
		return &InputError{Field: "aspect_ratio", Reason: "unsupported value " + string(o.AspectRatio)}
	}
	if !o.ScaleAnimation.Valid() {
		return &InputError{Field: "scale_animation", Reason: "unsupported value " + string(o.ScaleAnimation)}
	}
	switch o.CropAnchor {
	case "", AnchorCenter, AnchorSmart:
	default:
		return &InputError{Field: "crop_anchor", Reason: "unsupported value " + string(o.CropAnchor)}
	}
	if o.Adjust != nil {
		if err := o.Adjust.Validate(); err != nil {
			return &InputError{Field: "adjust", Reason: err.Error()}
		}
	}
	return nil
}

// RunStats counts what happened to frames on the way through a run. A run that drops
// frames still succeeds; the counts are the only trace of the degradation.
type RunStats struct {
	Requested            int
	Sampled              int
	CropFallbacks        int
	SegmentationFailures int
	Encoded              int
}

// GifOutput is the encoded animation. Loop is always true: loop count 0 is written.
type GifOutput struct {
	Bytes        []byte
	FrameCount   int
	Width        int
	Height       int
	DelaySeconds float64
	Loop         bool
	Frames       []image.Image
	Stats        RunStats
}

// ProgressFunc receives a fraction in [0,1] and a stage message.
type ProgressFunc func(fraction float64, message string)
