package gifmaker

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/yelerty/stickermaker/internal/imagefx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Segmenter removes the background of one image. The result must keep the input
// dimensions and carry alpha for the removed region.
type Segmenter interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

type Transformer struct {
	segmenter   Segmenter
	cropper     *cropper
	logger      *zap.Logger
	concurrency int
}

type TransformerOption func(*Transformer)

// WithConcurrency lets up to n frames be segmented at once. Order and frame-boundary
// cancellation are unchanged; 1 keeps the sequential behaviour.
func WithConcurrency(n int) TransformerOption {
	return func(t *Transformer) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

func NewTransformer(segmenter Segmenter, logger *zap.Logger, opts ...TransformerOption) *Transformer {
	t := &Transformer{
		segmenter:   segmenter,
		cropper:     newCropper(),
		logger:      logger,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ProgressSpan maps a stage-local fraction onto [from, to] of the overall run.
func ProgressSpan(fn ProgressFunc, from, to float64) ProgressFunc {
	if fn == nil {
		return nil
	}
	return func(fraction float64, message string) {
		fn(from+(to-from)*fraction, message)
	}
}

// Transform applies crop, background removal, adjustments and scale animation to every
// frame, in that order. Per-frame failures fall back to the frame as it was before the
// failing step. The context is checked between frames only; once it is done the
// partial result is discarded and ErrCancelled is returned.
func (t *Transformer) Transform(ctx context.Context, frames []Frame, opts TransformOptions, progress ProgressFunc) ([]Frame, RunStats, error) {
	if t.concurrency > 1 && opts.RemoveBackground && len(frames) > 1 {
		return t.transformParallel(ctx, frames, opts, progress)
	}

	var stats RunStats
	out := make([]Frame, len(frames))
	for i, f := range frames {
		if err := checkContext(ctx); err != nil {
			return nil, RunStats{}, err
		}

		res, cropOK, segOK := t.transformFrame(ctx, f, i, len(frames), opts)
		out[i] = res
		stats.record(cropOK, segOK)

		if progress != nil {
			progress(float64(i+1)/float64(len(frames)), stageMessage(opts, i+1, len(frames)))
		}
	}
	return out, stats, nil
}

func (t *Transformer) transformParallel(ctx context.Context, frames []Frame, opts TransformOptions, progress ProgressFunc) ([]Frame, RunStats, error) {
	var (
		mu    sync.Mutex
		done  int
		stats RunStats
		g     errgroup.Group
	)
	out := make([]Frame, len(frames))
	g.SetLimit(t.concurrency)

	for i, f := range frames {
		i, f := i, f
		g.Go(func() error {
			if err := checkContext(ctx); err != nil {
				return err
			}

			res, cropOK, segOK := t.transformFrame(ctx, f, i, len(frames), opts)
			out[i] = res

			mu.Lock()
			defer mu.Unlock()
			done++
			stats.record(cropOK, segOK)
			if progress != nil {
				progress(float64(done)/float64(len(frames)), stageMessage(opts, done, len(frames)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, RunStats{}, err
	}
	return out, stats, nil
}

func (t *Transformer) transformFrame(ctx context.Context, f Frame, pos, total int, opts TransformOptions) (Frame, bool, bool) {
	img := f.Image
	log := t.logger.With(zap.Int("frame_index", f.Index))

	cropped, cropOK := t.cropper.crop(img, opts.AspectRatio, opts.CropAnchor)
	if !cropOK {
		log.Debug("aspect crop not possible, keeping frame", zap.Error(ErrCrop), zap.String("aspect_ratio", string(opts.AspectRatio)))
	}
	img = cropped

	segOK := true
	if opts.RemoveBackground {
		segmented, err := t.removeBackground(ctx, img)
		if err != nil {
			segOK = false
			log.Warn("background removal failed, keeping frame", zap.Error(err))
		} else {
			img = segmented
		}
	}

	if opts.Adjust != nil && !opts.Adjust.IsZero() {
		img = imagefx.Apply(img, *opts.Adjust)
	}

	if s := ScaleFactor(opts.ScaleAnimation, pos, total); s != 1.0 {
		img = ScaleInCanvas(img, s)
	}

	return Frame{Index: f.Index, Time: f.Time, Image: img}, cropOK, segOK
}

func (t *Transformer) removeBackground(ctx context.Context, img image.Image) (image.Image, error) {
	if t.segmenter == nil {
		return nil, fmt.Errorf("%w: no segmenter configured", ErrSegmentation)
	}
	out, err := t.segmenter.RemoveBackground(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSegmentation, err)
	}
	if out == nil || out.Bounds().Size() != img.Bounds().Size() {
		return nil, fmt.Errorf("%w: segmenter changed image dimensions", ErrSegmentation)
	}
	return out, nil
}

func (s *RunStats) record(cropOK, segOK bool) {
	if !cropOK {
		s.CropFallbacks++
	}
	if !segOK {
		s.SegmentationFailures++
	}
}

func stageMessage(opts TransformOptions, done, total int) string {
	if opts.RemoveBackground {
		return fmt.Sprintf("removing background %d/%d", done, total)
	}
	return fmt.Sprintf("transforming frame %d/%d", done, total)
}
