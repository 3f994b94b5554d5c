package segmentation

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	pigo "github.com/esimov/pigo/core"
	"go.uber.org/zap"
)

type detector interface {
	detect(img image.Image) []pigo.Detection
}

type cascadeDetector struct {
	classifier   *pigo.Pigo
	minQuality   float32
	iouThreshold float64
}

func (d *cascadeDetector) detect(img image.Image) []pigo.Detection {
	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()

	params := pigo.CascadeParams{
		MinSize:     max(20, min(cols, rows)/10),
		MaxSize:     max(cols, rows),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.iouThreshold)

	kept := dets[:0]
	for _, det := range dets {
		if det.Q >= d.minQuality {
			kept = append(kept, det)
		}
	}
	return kept
}

// FaceSegmenter keeps a head-and-shoulders region around the most confident face and
// clears everything else. It runs locally and stands in when no segmentation service
// is deployed.
type FaceSegmenter struct {
	detector detector
	logger   *zap.Logger
}

// NewFaceSegmenter loads a pigo cascade file, such as the facefinder model shipped with
// pigo.
func NewFaceSegmenter(cascadePath string, logger *zap.Logger) (*FaceSegmenter, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("read cascade: %w", err)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return &FaceSegmenter{
		detector: &cascadeDetector{classifier: classifier, minQuality: 5, iouThreshold: 0.2},
		logger:   logger,
	}, nil
}

func (s *FaceSegmenter) RemoveBackground(_ context.Context, img image.Image) (image.Image, error) {
	dets := s.detector.detect(img)
	if len(dets) == 0 {
		return nil, ErrNoForeground
	}

	best := dets[0]
	for _, d := range dets[1:] {
		if d.Q > best.Q {
			best = d
		}
	}
	s.logger.Debug("face found",
		zap.Int("row", best.Row),
		zap.Int("col", best.Col),
		zap.Int("scale", best.Scale),
		zap.Float32("quality", best.Q),
	)
	return portraitCutout(img, best), nil
}

// portraitCutout masks img with an ellipse that spans the face and extends down over the
// shoulders. Alpha fades out over the outer tenth of the ellipse.
func portraitCutout(img image.Image, face pigo.Detection) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	scale := float64(face.Scale)
	cx := float64(face.Col)
	cy := float64(face.Row) + 0.9*scale
	rx := 1.3 * scale
	ry := 2.0 * scale

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			dy := (float64(y) + 0.5 - cy) / ry
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist >= 1 {
				continue
			}

			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if dist > 0.9 {
				c.A = uint8(float64(c.A) * (1 - dist) / 0.1)
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}
