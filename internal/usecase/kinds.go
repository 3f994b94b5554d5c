package usecase

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/yelerty/stickermaker/internal/domain/entity"
	"github.com/yelerty/stickermaker/internal/gifmaker"
	"github.com/yelerty/stickermaker/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type jobResult struct {
	outputKey  string
	packKey    string
	frameCount int
	width      int
	height     int
}

func (uc *GifJobUseCase) runVideoGif(ctx context.Context, job *entity.GifJob, msg entity.GifRequestMessage, workDir string, reporter *progressReporter, log *zap.Logger) (*jobResult, error) {
	if msg.VideoKey == "" {
		return nil, fmt.Errorf("%w: video_key is required", errPermanent)
	}

	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	if err := uc.download(ctx, msg.VideoKey, videoPath, log); err != nil {
		return nil, err
	}

	var duration float64
	info, err := uc.prober.Probe(ctx, videoPath)
	if err != nil {
		log.Warn("probe failed, sampling without a known duration", zap.Error(err))
	} else {
		duration = info.Duration
	}

	renderStart := time.Now()
	out, err := uc.maker.CreateGif(ctx, gifmaker.Request{
		Source:       gifmaker.MediaSource{URI: videoPath, Duration: duration},
		Range:        gifmaker.TimeRange{Start: msg.StartSeconds, End: msg.EndSeconds},
		FrameCount:   msg.FrameCount,
		DelaySeconds: msg.DelaySeconds,
		Options:      transformOptions(msg),
	}, reporter.report)
	if err != nil {
		return nil, fmt.Errorf("create gif: %w", err)
	}
	metrics.JobProcessingDuration.WithLabelValues("render").Observe(time.Since(renderStart).Seconds())
	recordStats(out.Stats)

	return uc.uploadGif(ctx, job, msg, out, log)
}

func (uc *GifJobUseCase) runImageGif(ctx context.Context, job *entity.GifJob, msg entity.GifRequestMessage, workDir string, reporter *progressReporter, log *zap.Logger) (*jobResult, error) {
	if len(msg.ImageKeys) == 0 {
		return nil, fmt.Errorf("%w: image_keys is required", errPermanent)
	}

	images := make([]image.Image, 0, len(msg.ImageKeys))
	for i, key := range msg.ImageKeys {
		img, err := uc.downloadImage(ctx, key, filepath.Join(workDir, fmt.Sprintf("image_%03d%s", i, filepath.Ext(key))), log)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	renderStart := time.Now()
	out, err := uc.maker.CreateGifFromImages(ctx, images, msg.DelaySeconds, transformOptions(msg), reporter.report)
	if err != nil {
		return nil, fmt.Errorf("create gif from images: %w", err)
	}
	metrics.JobProcessingDuration.WithLabelValues("render").Observe(time.Since(renderStart).Seconds())
	recordStats(out.Stats)

	return uc.uploadGif(ctx, job, msg, out, log)
}

func (uc *GifJobUseCase) runSticker(ctx context.Context, job *entity.GifJob, msg entity.GifRequestMessage, workDir string, reporter *progressReporter, log *zap.Logger) (*jobResult, error) {
	if len(msg.ImageKeys) == 0 {
		return nil, fmt.Errorf("%w: image_keys is required", errPermanent)
	}

	img, err := uc.downloadImage(ctx, msg.ImageKeys[0], filepath.Join(workDir, "sticker"+filepath.Ext(msg.ImageKeys[0])), log)
	if err != nil {
		return nil, err
	}

	req := gifmaker.StickerRequest{Image: img, Options: transformOptions(msg)}
	if msg.BackgroundKey != "" {
		bg, err := uc.downloadImage(ctx, msg.BackgroundKey, filepath.Join(workDir, "background"+filepath.Ext(msg.BackgroundKey)), log)
		if err != nil {
			return nil, err
		}
		req.Background = bg
	}
	if msg.Composite != nil {
		req.Placement = *msg.Composite
	}

	renderStart := time.Now()
	out, err := uc.maker.CreateSticker(ctx, req, reporter.report)
	if err != nil {
		return nil, fmt.Errorf("create sticker: %w", err)
	}
	metrics.JobProcessingDuration.WithLabelValues("render").Observe(time.Since(renderStart).Seconds())

	res := &jobResult{
		outputKey:  fmt.Sprintf("%s/%s.png", job.UserID, job.ID),
		frameCount: 1,
		width:      out.Width,
		height:     out.Height,
	}
	if err := uc.upload(ctx, res.outputKey, out.PNG, "image/png", log); err != nil {
		return nil, err
	}
	if msg.ExportPack {
		if res.packKey, err = uc.uploadPack(ctx, job, []image.Image{out.Image}, log); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (uc *GifJobUseCase) uploadGif(ctx context.Context, job *entity.GifJob, msg entity.GifRequestMessage, out *gifmaker.GifOutput, log *zap.Logger) (*jobResult, error) {
	res := &jobResult{
		outputKey:  fmt.Sprintf("%s/%s.gif", job.UserID, job.ID),
		frameCount: out.FrameCount,
		width:      out.Width,
		height:     out.Height,
	}
	if err := uc.upload(ctx, res.outputKey, out.Bytes, "image/gif", log); err != nil {
		return nil, err
	}
	if msg.ExportPack {
		var err error
		if res.packKey, err = uc.uploadPack(ctx, job, out.Frames, log); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (uc *GifJobUseCase) uploadPack(ctx context.Context, job *entity.GifJob, frames []image.Image, log *zap.Logger) (string, error) {
	var buf bytes.Buffer
	if err := uc.packs.WritePack(ctx, frames, &buf); err != nil {
		return "", fmt.Errorf("write pack: %w", err)
	}
	key := fmt.Sprintf("%s/%s_pack.zip", job.UserID, job.ID)
	if err := uc.upload(ctx, key, buf.Bytes(), "application/zip", log); err != nil {
		return "", err
	}
	return key, nil
}

func (uc *GifJobUseCase) download(ctx context.Context, key, dest string, log *zap.Logger) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "download_input")
	defer span.End()

	start := time.Now()
	if err := uc.storage.DownloadInput(ctx, key, dest); err != nil {
		log.Error("failed to download input", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("download %s: %w", key, err)
	}
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(start).Seconds())
	return nil
}

// downloadImage fetches and decodes one uploaded image. An undecodable upload is the
// user's input, not a transient fault.
func (uc *GifJobUseCase) downloadImage(ctx context.Context, key, dest string, log *zap.Logger) (image.Image, error) {
	if err := uc.download(ctx, key, dest, log); err != nil {
		return nil, err
	}
	img, err := imaging.Open(dest, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", errPermanent, key, err)
	}
	return img, nil
}

func (uc *GifJobUseCase) upload(ctx context.Context, key string, data []byte, contentType string, log *zap.Logger) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "upload_output")
	defer span.End()

	start := time.Now()
	if err := uc.storage.UploadOutput(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		log.Error("failed to upload output", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("upload %s: %w", key, err)
	}
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	return nil
}

func transformOptions(msg entity.GifRequestMessage) gifmaker.TransformOptions {
	return gifmaker.TransformOptions{
		AspectRatio:      gifmaker.AspectRatio(msg.AspectRatio),
		CropAnchor:       gifmaker.CropAnchor(msg.CropAnchor),
		RemoveBackground: msg.RemoveBackground,
		ScaleAnimation:   gifmaker.ScaleAnimation(msg.ScaleAnimation),
		Adjust:           msg.Adjust,
	}
}

func recordStats(s gifmaker.RunStats) {
	metrics.FramesEncodedTotal.Add(float64(s.Encoded))

	degraded := map[string]int{
		"decode":                s.Requested - s.Sampled,
		"crop_fallback":         s.CropFallbacks,
		"segmentation_fallback": s.SegmentationFailures,
		"empty":                 s.Sampled - s.Encoded,
	}
	for reason, n := range degraded {
		if n > 0 {
			metrics.FramesDegradedTotal.WithLabelValues(reason).Add(float64(n))
		}
	}
}
