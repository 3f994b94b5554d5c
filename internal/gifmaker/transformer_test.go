package gifmaker

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yelerty/stickermaker/internal/imagefx"
	"go.uber.org/zap/zaptest"
)

func TestTransform_PreservesOrderAndSize(t *testing.T) {
	tr := NewTransformer(nil, zaptest.NewLogger(t))
	frames := framesOf(4, 64, 36)

	out, stats, err := tr.Transform(context.Background(), frames, TransformOptions{AspectRatio: AspectSquare}, nil)
	require.NoError(t, err)

	require.Len(t, out, 4)
	for i, f := range out {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, frames[i].Time, f.Time)
		assert.Equal(t, image.Pt(36, 36), f.Image.Bounds().Size())
	}
	assert.Zero(t, stats.CropFallbacks)
}

func TestTransform_RemovesBackground(t *testing.T) {
	seg := newFakeSegmenter()
	tr := NewTransformer(seg, zaptest.NewLogger(t))

	out, stats, err := tr.Transform(context.Background(), framesOf(2, 10, 10), TransformOptions{RemoveBackground: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, seg.callCount())
	assert.Zero(t, stats.SegmentationFailures)
	for _, f := range out {
		assert.Zero(t, alphaAt(f.Image, 0, 0))
		assert.Equal(t, uint32(0xffff), alphaAt(f.Image, 9, 0))
	}
}

func TestTransform_SegmentationFailureKeepsCroppedFrame(t *testing.T) {
	seg := newFakeSegmenter()
	seg.failCalls[1] = true
	tr := NewTransformer(seg, zaptest.NewLogger(t))
	frames := framesOf(3, 10, 10)

	out, stats, err := tr.Transform(context.Background(), frames, TransformOptions{RemoveBackground: true}, nil)
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Same(t, frames[1].Image, out[1].Image)
	assert.Equal(t, 1, stats.SegmentationFailures)
	assert.Zero(t, alphaAt(out[0].Image, 0, 0))
	assert.Zero(t, alphaAt(out[2].Image, 0, 0))
}

func TestTransform_RejectsSegmenterThatResizes(t *testing.T) {
	seg := newFakeSegmenter()
	seg.shrink = true
	tr := NewTransformer(seg, zaptest.NewLogger(t))
	frames := framesOf(3, 12, 12)

	out, stats, err := tr.Transform(context.Background(), frames, TransformOptions{RemoveBackground: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.SegmentationFailures)
	for i := range out {
		assert.Same(t, frames[i].Image, out[i].Image)
	}
}

func TestTransform_ReportsProgress(t *testing.T) {
	tr := NewTransformer(newFakeSegmenter(), zaptest.NewLogger(t))

	var fractions []float64
	var messages []string
	_, _, err := tr.Transform(context.Background(), framesOf(5, 8, 8), TransformOptions{RemoveBackground: true}, func(f float64, msg string) {
		fractions = append(fractions, f)
		messages = append(messages, msg)
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.2, 0.4, 0.6, 0.8, 1}, fractions)
	assert.Equal(t, "removing background 5/5", messages[len(messages)-1])
}

func TestTransform_MessageWithoutSegmentation(t *testing.T) {
	tr := NewTransformer(nil, zaptest.NewLogger(t))

	var last string
	_, _, err := tr.Transform(context.Background(), framesOf(2, 8, 8), TransformOptions{}, func(_ float64, msg string) {
		last = msg
	})
	require.NoError(t, err)
	assert.Equal(t, "transforming frame 2/2", last)
}

func TestTransform_CancelledBetweenFrames(t *testing.T) {
	seg := newFakeSegmenter()
	tr := NewTransformer(seg, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, stats, err := tr.Transform(ctx, framesOf(5, 8, 8), TransformOptions{RemoveBackground: true}, func(_ float64, msg string) {
		if msg == "removing background 2/5" {
			cancel()
		}
	})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
	assert.Equal(t, RunStats{}, stats)
	assert.Equal(t, 2, seg.callCount(), "the in-flight frame finishes, no further frames start")
}

func TestTransform_AppliesPreset(t *testing.T) {
	tr := NewTransformer(nil, zaptest.NewLogger(t))
	opts := TransformOptions{Adjust: &imagefx.Adjustments{Preset: imagefx.PresetMono}}

	out, _, err := tr.Transform(context.Background(), framesOf(1, 16, 16), opts, nil)
	require.NoError(t, err)

	r, g, b, _ := out[0].Image.At(12, 3).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestTransform_ScaleAnimation(t *testing.T) {
	tr := NewTransformer(nil, zaptest.NewLogger(t))
	frames := make([]Frame, 3)
	for i := range frames {
		frames[i] = Frame{Index: i, Image: solidImage(20, 20, image.Black.C)}
	}

	out, _, err := tr.Transform(context.Background(), frames, TransformOptions{ScaleAnimation: ScaleZoomIn}, nil)
	require.NoError(t, err)

	assert.Same(t, frames[0].Image, out[0].Image, "first zoomIn frame is full size")
	assert.Equal(t, image.Pt(20, 20), out[2].Image.Bounds().Size())
	assert.Zero(t, alphaAt(out[2].Image, 0, 0), "last zoomIn frame is half size")
}

func TestTransform_ParallelKeepsOrder(t *testing.T) {
	for _, workers := range []int{2, 4, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			seg := newFakeSegmenter()
			tr := NewTransformer(seg, zaptest.NewLogger(t), WithConcurrency(workers))
			frames := framesOf(6, 10, 10)

			var last float64
			out, stats, err := tr.Transform(context.Background(), frames, TransformOptions{RemoveBackground: true}, func(f float64, _ string) {
				assert.GreaterOrEqual(t, f, last)
				last = f
			})
			require.NoError(t, err)

			require.Len(t, out, len(frames))
			for i := range frames {
				assert.Equal(t, i, out[i].Index)
				assert.Same(t, seg.outputs[frames[i].Image], out[i].Image)
			}
			assert.Equal(t, 1.0, last)
			assert.Zero(t, stats.SegmentationFailures)
		})
	}
}

func TestTransform_ParallelCancelled(t *testing.T) {
	seg := newFakeSegmenter()
	tr := NewTransformer(seg, zaptest.NewLogger(t), WithConcurrency(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, _, err := tr.Transform(ctx, framesOf(6, 8, 8), TransformOptions{RemoveBackground: true}, nil)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, out)
	assert.Zero(t, seg.callCount())
}

func TestProgressSpan(t *testing.T) {
	var got []float64
	fn := ProgressSpan(func(f float64, _ string) { got = append(got, f) }, 0.3, 0.9)
	fn(0, "")
	fn(0.5, "")
	fn(1, "")

	require.Len(t, got, 3)
	assert.InDelta(t, 0.3, got[0], 1e-9)
	assert.InDelta(t, 0.6, got[1], 1e-9)
	assert.InDelta(t, 0.9, got[2], 1e-9)
	assert.Nil(t, ProgressSpan(nil, 0, 1))
}
