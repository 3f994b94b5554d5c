package segmentation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoForeground is returned when the service found nothing to keep.
var ErrNoForeground = errors.New("no foreground instance found")

type RemoteConfig struct {
	URL     string
	Timeout time.Duration
	// Rate is the sustained request rate per second; Burst the bucket size.
	Rate  float64
	Burst int
}

// RemoteSegmenter posts a PNG to a segmentation service and reads back a PNG of the
// same size whose alpha channel masks out the background.
type RemoteSegmenter struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewRemoteSegmenter(cfg RemoteConfig, logger *zap.Logger) *RemoteSegmenter {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &RemoteSegmenter{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (s *RemoteSegmenter) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for segmenter slot: %w", err)
	}

	var body bytes.Buffer
	if err := imaging.Encode(&body, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode request image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return nil, fmt.Errorf("build segment request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("segment request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, ErrNoForeground
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("segmenter returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	out, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode segmenter response: %w", err)
	}

	s.logger.Debug("background removed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("width", out.Bounds().Dx()),
		zap.Int("height", out.Bounds().Dy()),
	)
	return out, nil
}
