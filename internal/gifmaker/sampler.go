package gifmaker

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// FrameDecoder resolves one timestamp of a source to a bitmap. Errors are per call and
// never abort sampling.
type FrameDecoder interface {
	DecodeFrame(ctx context.Context, src MediaSource, atSeconds float64) (image.Image, error)
}

type Sampler struct {
	decoder FrameDecoder
	logger  *zap.Logger
}

func NewSampler(decoder FrameDecoder, logger *zap.Logger) *Sampler {
	return &Sampler{decoder: decoder, logger: logger}
}

// SampleTimes returns frameCount left-aligned sample times: start + i*(length/frameCount).
func SampleTimes(r TimeRange, frameCount int) []float64 {
	if frameCount < 1 {
		return nil
	}
	step := r.Length() / float64(frameCount)
	times := make([]float64, frameCount)
	for i := range times {
		times[i] = r.Start + float64(i)*step
	}
	return times
}

// Sample decodes every sample time in order. Frames that fail to decode are logged and
// left out; the result is not padded and may be empty.
func (s *Sampler) Sample(ctx context.Context, src MediaSource, r TimeRange, frameCount int, progress ProgressFunc) ([]Frame, error) {
	times := SampleTimes(r, frameCount)
	frames := make([]Frame, 0, len(times))

	for i, t := range times {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}

		img, err := s.decoder.DecodeFrame(ctx, src, t)
		if err == nil && img == nil {
			err = fmt.Errorf("%w: decoder returned no image", ErrDecode)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, cancelled(ctx)
			}
			s.logger.Warn("skipping frame that failed to decode",
				zap.Int("frame_index", i),
				zap.Float64("time_secs", t),
				zap.Error(err),
			)
		} else {
			frames = append(frames, Frame{Index: i, Time: t, Image: img})
		}

		if progress != nil {
			progress(float64(i+1)/float64(len(times)), fmt.Sprintf("extracting frame %d/%d", i+1, len(times)))
		}
	}

	s.logger.Debug("sampling finished",
		zap.Int("requested", frameCount),
		zap.Int("sampled", len(frames)),
	)
	return frames, nil
}
