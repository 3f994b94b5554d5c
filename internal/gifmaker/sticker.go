package gifmaker

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/yelerty/stickermaker/internal/imagefx"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// StickerRequest is one still sticker: Image is cropped and cut out, optionally placed
// over Background, then colour-adjusted.
type StickerRequest struct {
	Image      image.Image
	Background image.Image
	Placement  imagefx.CompositeOptions
	Options    TransformOptions
}

type StickerOutput struct {
	PNG    []byte
	Width  int
	Height int
	Image  image.Image
}

// CreateSticker runs the still-image flow. Unlike GIF frames, a sticker whose background
// removal fails is an ErrSegmentation: there is no other frame to carry the result.
func (p *Pipeline) CreateSticker(ctx context.Context, req StickerRequest, onProgress ProgressFunc) (*StickerOutput, error) {
	if req.Image == nil || req.Image.Bounds().Empty() {
		return nil, &InputError{Field: "image", Reason: "no image provided"}
	}
	if err := p.validateOptions(req.Options); err != nil {
		return nil, err
	}
	if err := req.Placement.Validate(); err != nil {
		return nil, &InputError{Field: "composite", Reason: err.Error()}
	}

	ctx, span := otel.Tracer("gifmaker").Start(ctx, "Pipeline.CreateSticker")
	defer span.End()

	progress := monotonic(onProgress)
	progress(0, "starting")

	opts := req.Options
	opts.ScaleAnimation = ScaleNone
	adjust := opts.Adjust
	opts.Adjust = nil

	frames, stats, err := p.transformer.Transform(ctx, []Frame{{Image: req.Image}}, opts, ProgressSpan(progress, 0, 0.7))
	if err != nil {
		return nil, err
	}
	if stats.SegmentationFailures > 0 {
		return nil, fmt.Errorf("%w: sticker has no foreground", ErrSegmentation)
	}
	img := frames[0].Image

	if req.Background != nil && !req.Background.Bounds().Empty() {
		progress(0.8, "compositing")
		img = imagefx.Composite(img, req.Background, req.Placement)
	}
	if adjust != nil && !adjust.IsZero() {
		img = imagefx.Apply(img, *adjust)
	}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	progress(0.9, "encoding png")
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	progress(1, "done")

	size := img.Bounds().Size()
	p.logger.Info("sticker created",
		zap.Int("width", size.X),
		zap.Int("height", size.Y),
		zap.Bool("composited", req.Background != nil),
		zap.Int("bytes", buf.Len()),
	)
	return &StickerOutput{PNG: buf.Bytes(), Width: size.X, Height: size.Y, Image: img}, nil
}
