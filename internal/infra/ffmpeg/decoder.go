package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/yelerty/stickermaker/internal/gifmaker"
	"go.uber.org/zap"
)

// Decoder grabs single frames from a local video file with one ffmpeg run per frame.
type Decoder struct {
	binary string
	logger *zap.Logger
}

func NewDecoder(binary string, logger *zap.Logger) *Decoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Decoder{binary: binary, logger: logger}
}

// DecodeFrame returns the frame displayed at atSeconds. Seeking is frame-accurate since
// ffmpeg decodes from the previous keyframe when -ss precedes -i.
func (d *Decoder) DecodeFrame(ctx context.Context, src gifmaker.MediaSource, atSeconds float64) (image.Image, error) {
	ts := strconv.FormatFloat(atSeconds, 'f', 3, 64)
	cmd := exec.CommandContext(ctx, d.binary,
		"-v", "error",
		"-ss", ts,
		"-i", src.URI,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg at %ss: %w, output: %s", gifmaker.ErrDecode, ts, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no frame at %ss", gifmaker.ErrDecode, ts)
	}

	img, err := imaging.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: decode png at %ss: %w", gifmaker.ErrDecode, ts, err)
	}

	d.logger.Debug("frame decoded",
		zap.String("timestamp", ts),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
	)
	return img, nil
}
