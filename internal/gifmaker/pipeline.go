package gifmaker

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultMaxFrames = 120

const (
	sampleSpanEnd    = 0.3
	transformSpanEnd = 0.9
)

// Request is one createGif call.
type Request struct {
	Source       MediaSource
	Range        TimeRange
	FrameCount   int
	DelaySeconds float64
	Options      TransformOptions
}

type Pipeline struct {
	sampler     *Sampler
	transformer *Transformer
	encoder     *Encoder
	logger      *zap.Logger
	maxFrames   int
}

type PipelineConfig struct {
	MaxFrames               int
	SegmentationConcurrency int
}

func NewPipeline(decoder FrameDecoder, segmenter Segmenter, logger *zap.Logger, cfg PipelineConfig) *Pipeline {
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = DefaultMaxFrames
	}
	return &Pipeline{
		sampler:     NewSampler(decoder, logger),
		transformer: NewTransformer(segmenter, logger, WithConcurrency(cfg.SegmentationConcurrency)),
		encoder:     NewEncoder(logger),
		logger:      logger,
		maxFrames:   cfg.MaxFrames,
	}
}

// CreateGif samples, transforms and encodes. It returns an error matching
// ErrInvalidInput before any stage runs, ErrCancelled when ctx is done at a frame
// boundary, or ErrEncoding when nothing could be written. Dropped frames do not fail
// the run.
func (p *Pipeline) CreateGif(ctx context.Context, req Request, onProgress ProgressFunc) (*GifOutput, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	tracer := otel.Tracer("gifmaker")
	ctx, span := tracer.Start(ctx, "Pipeline.CreateGif")
	defer span.End()
	span.SetAttributes(
		attribute.String("gif.source", req.Source.URI),
		attribute.Int("gif.frame_count", req.FrameCount),
	)

	progress := monotonic(onProgress)
	progress(0, "starting")

	sampleCtx, sampleSpan := tracer.Start(ctx, "sample_frames")
	frames, err := p.sampler.Sample(sampleCtx, req.Source, req.Range, req.FrameCount, ProgressSpan(progress, 0, sampleSpanEnd))
	sampleSpan.End()
	if err != nil {
		return nil, err
	}

	out, stats, err := p.transformAndEncode(ctx, frames, req.DelaySeconds, req.Options, progress, sampleSpanEnd)
	if err != nil {
		return nil, err
	}

	out.Stats.Requested = req.FrameCount
	out.Stats.Sampled = len(frames)
	out.Stats.CropFallbacks = stats.CropFallbacks
	out.Stats.SegmentationFailures = stats.SegmentationFailures

	p.logger.Info("gif created",
		zap.Int("requested_frames", req.FrameCount),
		zap.Int("sampled_frames", len(frames)),
		zap.Int("encoded_frames", out.FrameCount),
		zap.Int("segmentation_failures", stats.SegmentationFailures),
		zap.Int("bytes", len(out.Bytes)),
	)
	return out, nil
}

// CreateGifFromImages builds a GIF from still images. Images are fitted onto the
// canvas of the first one before the usual transform and encode stages.
func (p *Pipeline) CreateGifFromImages(ctx context.Context, images []image.Image, delaySeconds float64, opts TransformOptions, onProgress ProgressFunc) (*GifOutput, error) {
	if len(images) == 0 {
		return nil, &InputError{Field: "images", Reason: "at least one image is required"}
	}
	if len(images) > p.maxFrames {
		return nil, &InputError{Field: "images", Reason: "too many images"}
	}
	if err := validateDelay(delaySeconds); err != nil {
		return nil, err
	}
	if err := p.validateOptions(opts); err != nil {
		return nil, err
	}

	progress := monotonic(onProgress)
	progress(0, "starting")

	frames := make([]Frame, 0, len(images))
	var canvas image.Rectangle
	for i, img := range images {
		if img == nil || img.Bounds().Empty() {
			p.logger.Warn("skipping empty input image", zap.Int("frame_index", i))
			continue
		}
		if canvas.Empty() {
			canvas = img.Bounds()
		}
		frames = append(frames, Frame{Index: i, Image: fitCanvas(img, canvas.Dx(), canvas.Dy())})
	}
	progress(sampleSpanEnd, "images loaded")

	out, stats, err := p.transformAndEncode(ctx, frames, delaySeconds, opts, progress, sampleSpanEnd)
	if err != nil {
		return nil, err
	}
	out.Stats.Requested = len(images)
	out.Stats.Sampled = len(frames)
	out.Stats.CropFallbacks = stats.CropFallbacks
	out.Stats.SegmentationFailures = stats.SegmentationFailures
	return out, nil
}

func (p *Pipeline) transformAndEncode(ctx context.Context, frames []Frame, delaySeconds float64, opts TransformOptions, progress ProgressFunc, from float64) (*GifOutput, RunStats, error) {
	tracer := otel.Tracer("gifmaker")

	tctx, tspan := tracer.Start(ctx, "transform_frames", trace.WithAttributes(
		attribute.Int("gif.frames", len(frames)),
		attribute.Bool("gif.remove_background", opts.RemoveBackground),
		attribute.String("gif.scale_animation", string(opts.ScaleAnimation)),
	))
	transformed, stats, err := p.transformer.Transform(tctx, frames, opts, ProgressSpan(progress, from, transformSpanEnd))
	tspan.SetAttributes(attribute.Int("gif.segmentation_failures", stats.SegmentationFailures))
	if err != nil {
		tspan.RecordError(err)
	}
	tspan.End()
	if err != nil {
		return nil, RunStats{}, err
	}

	if err := checkContext(ctx); err != nil {
		return nil, RunStats{}, err
	}

	progress(transformSpanEnd, "encoding gif")
	images := make([]image.Image, len(transformed))
	for i, f := range transformed {
		images[i] = f.Image
	}

	ectx, espan := tracer.Start(ctx, "encode_gif", trace.WithAttributes(attribute.Float64("gif.delay_seconds", delaySeconds)))
	out, err := p.encoder.Encode(ectx, images, delaySeconds)
	if err != nil {
		espan.RecordError(err)
	}
	espan.End()
	if err != nil {
		return nil, RunStats{}, err
	}
	out.Stats.Encoded = out.FrameCount

	progress(1, "done")
	return out, stats, nil
}

func (p *Pipeline) validate(req Request) error {
	if req.Source.URI == "" {
		return &InputError{Field: "source", Reason: "no media source provided"}
	}
	if req.FrameCount < 1 {
		return &InputError{Field: "frame_count", Reason: "must be at least 1"}
	}
	if req.FrameCount > p.maxFrames {
		return &InputError{Field: "frame_count", Reason: "exceeds the maximum frame count"}
	}
	if err := req.Range.Validate(req.Source.Duration); err != nil {
		return err
	}
	if err := validateDelay(req.DelaySeconds); err != nil {
		return err
	}
	return p.validateOptions(req.Options)
}

func (p *Pipeline) validateOptions(opts TransformOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if opts.RemoveBackground && p.transformer.segmenter == nil {
		return &InputError{Field: "remove_background", Reason: "no segmentation service configured"}
	}
	return nil
}

func validateDelay(d float64) error {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return &InputError{Field: "delay_seconds", Reason: "must be positive"}
	}
	if math.Round(d*100) > maxDelayCentiseconds {
		return &InputError{Field: "delay_seconds", Reason: fmt.Sprintf("must be at most %.2f", MaxDelaySeconds)}
	}
	return nil
}

// fitCanvas scales img to fit inside w x h and centers it on a transparent canvas.
func fitCanvas(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	fitted := imaging.Fit(img, w, h, imaging.Lanczos)
	return imaging.PasteCenter(imaging.New(w, h, color.Transparent), fitted)
}

// monotonic clamps fractions to [0,1] and drops regressions so callers only ever see
// non-decreasing progress.
func monotonic(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(float64, string) {}
	}
	var (
		mu   sync.Mutex
		last float64
	)
	return func(fraction float64, message string) {
		fraction = math.Min(math.Max(fraction, 0), 1)
		mu.Lock()
		defer mu.Unlock()
		if fraction < last {
			fraction = last
		}
		last = fraction
		fn(fraction, message)
	}
}
