package gifmaker

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type progressLog struct {
	fractions []float64
	messages  []string
}

func (p *progressLog) record(f float64, msg string) {
	p.fractions = append(p.fractions, f)
	p.messages = append(p.messages, msg)
}

func validRequest() Request {
	return Request{
		Source:       MediaSource{URI: "clip.mp4", Duration: 10},
		Range:        TimeRange{Start: 2, End: 5},
		FrameCount:   5,
		DelaySeconds: 0.15,
	}
}

func TestCreateGif_SamplesRangeAndEncodes(t *testing.T) {
	dec := newFakeDecoder(40, 30)
	p := NewPipeline(dec, nil, zaptest.NewLogger(t), PipelineConfig{})

	var progress progressLog
	out, err := p.CreateGif(context.Background(), validRequest(), progress.record)
	require.NoError(t, err)

	assert.Equal(t, SampleTimes(TimeRange{Start: 2, End: 5}, 5), dec.times())
	assert.Equal(t, 5, out.FrameCount)
	assert.Equal(t, RunStats{Requested: 5, Sampled: 5, Encoded: 5}, out.Stats)

	g := decodeGIF(t, out.Bytes)
	assert.Len(t, g.Image, 5)
	assert.Equal(t, 0, g.LoopCount)
	assert.Equal(t, []int{15, 15, 15, 15, 15}, g.Delay)

	require.NotEmpty(t, progress.fractions)
	for i := 1; i < len(progress.fractions); i++ {
		assert.GreaterOrEqual(t, progress.fractions[i], progress.fractions[i-1])
	}
	assert.Equal(t, 1.0, progress.fractions[len(progress.fractions)-1])
	assert.Equal(t, "done", progress.messages[len(progress.messages)-1])
	assert.Contains(t, progress.messages, "encoding gif")
	assert.Contains(t, progress.messages, "extracting frame 5/5")
}

func TestCreateGif_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"zero frames", func(r *Request) { r.FrameCount = 0 }},
		{"too many frames", func(r *Request) { r.FrameCount = DefaultMaxFrames + 1 }},
		{"empty range", func(r *Request) { r.Range = TimeRange{Start: 3, End: 3} }},
		{"inverted range", func(r *Request) { r.Range = TimeRange{Start: 4, End: 1} }},
		{"negative start", func(r *Request) { r.Range.Start = -1 }},
		{"range past duration", func(r *Request) { r.Range.End = 12 }},
		{"no source", func(r *Request) { r.Source.URI = "" }},
		{"zero delay", func(r *Request) { r.DelaySeconds = 0 }},
		{"delay beyond gif field", func(r *Request) { r.DelaySeconds = 700 }},
		{"unknown aspect", func(r *Request) { r.Options.AspectRatio = "5:4" }},
		{"unknown animation", func(r *Request) { r.Options.ScaleAnimation = "spin" }},
		{"background removal without segmenter", func(r *Request) { r.Options.RemoveBackground = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := newFakeDecoder(8, 8)
			p := NewPipeline(dec, nil, zaptest.NewLogger(t), PipelineConfig{})
			req := validRequest()
			tt.mutate(&req)

			called := false
			out, err := p.CreateGif(context.Background(), req, func(float64, string) { called = true })

			assert.ErrorIs(t, err, ErrInvalidInput)
			var inputErr *InputError
			assert.ErrorAs(t, err, &inputErr)
			assert.Nil(t, out)
			assert.Empty(t, dec.times(), "no stage runs")
			assert.False(t, called)
		})
	}
}

func TestCreateGif_MaxFramesIsConfigurable(t *testing.T) {
	p := NewPipeline(newFakeDecoder(8, 8), nil, zaptest.NewLogger(t), PipelineConfig{MaxFrames: 3})
	req := validRequest()
	req.FrameCount = 4

	_, err := p.CreateGif(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateGif_UnknownDurationSkipsUpperBound(t *testing.T) {
	p := NewPipeline(newFakeDecoder(8, 8), nil, zaptest.NewLogger(t), PipelineConfig{})
	req := validRequest()
	req.Source.Duration = 0
	req.Range = TimeRange{Start: 0, End: 60}
	req.FrameCount = 2

	_, err := p.CreateGif(context.Background(), req, nil)
	assert.NoError(t, err)
}

func TestCreateGif_AllDecodesFail(t *testing.T) {
	dec := newFakeDecoder(8, 8)
	dec.failAll = true
	p := NewPipeline(dec, nil, zaptest.NewLogger(t), PipelineConfig{})

	out, err := p.CreateGif(context.Background(), validRequest(), nil)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Nil(t, out)
	assert.Len(t, dec.times(), 5)
}

func TestCreateGif_DroppedFramesStillSucceed(t *testing.T) {
	dec := newFakeDecoder(16, 16)
	dec.failIdx[1] = true
	seg := newFakeSegmenter()
	seg.failCalls[0] = true
	p := NewPipeline(dec, seg, zaptest.NewLogger(t), PipelineConfig{})

	req := validRequest()
	req.Options.RemoveBackground = true

	out, err := p.CreateGif(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, out.FrameCount)
	assert.Equal(t, RunStats{Requested: 5, Sampled: 4, SegmentationFailures: 1, Encoded: 4}, out.Stats)
}

func TestCreateGif_CancelledMidTransform(t *testing.T) {
	seg := newFakeSegmenter()
	p := NewPipeline(newFakeDecoder(16, 16), seg, zaptest.NewLogger(t), PipelineConfig{})
	req := validRequest()
	req.Options.RemoveBackground = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var progress progressLog
	out, err := p.CreateGif(ctx, req, func(f float64, msg string) {
		progress.record(f, msg)
		if msg == "removing background 2/5" {
			cancel()
		}
	})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, out)
	assert.Equal(t, 2, seg.callCount())
	assert.NotContains(t, progress.messages, "encoding gif")
	assert.NotContains(t, progress.messages, "done")
}

func TestCreateGif_CancelledBeforeStart(t *testing.T) {
	dec := newFakeDecoder(8, 8)
	p := NewPipeline(dec, nil, zaptest.NewLogger(t), PipelineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.CreateGif(ctx, validRequest(), nil)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, dec.times())
}

func TestCreateGifFromImages_FitsOntoFirstCanvas(t *testing.T) {
	p := NewPipeline(nil, nil, zaptest.NewLogger(t), PipelineConfig{})
	images := []image.Image{gradientImage(40, 20), gradientImage(10, 10), nil, gradientImage(80, 40)}

	var progress progressLog
	out, err := p.CreateGifFromImages(context.Background(), images, 0.5, TransformOptions{}, progress.record)
	require.NoError(t, err)

	assert.Equal(t, 3, out.FrameCount)
	assert.Equal(t, 40, out.Width)
	assert.Equal(t, 20, out.Height)
	for _, f := range out.Frames {
		assert.Equal(t, image.Pt(40, 20), f.Bounds().Size())
	}
	assert.Equal(t, RunStats{Requested: 4, Sampled: 3, Encoded: 3}, out.Stats)
	assert.Equal(t, []int{50, 50, 50}, decodeGIF(t, out.Bytes).Delay)
	assert.Equal(t, "done", progress.messages[len(progress.messages)-1])

	// the square image is letterboxed, leaving transparent columns on both sides
	assert.Zero(t, alphaAt(out.Frames[1], 0, 10))
	assert.NotZero(t, alphaAt(out.Frames[1], 20, 10))
}

func TestCreateGifFromImages_RejectsInvalidInput(t *testing.T) {
	p := NewPipeline(nil, nil, zaptest.NewLogger(t), PipelineConfig{MaxFrames: 2})

	_, err := p.CreateGifFromImages(context.Background(), nil, 0.5, TransformOptions{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	three := []image.Image{gradientImage(4, 4), gradientImage(4, 4), gradientImage(4, 4)}
	_, err = p.CreateGifFromImages(context.Background(), three, 0.5, TransformOptions{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.CreateGifFromImages(context.Background(), three[:1], -1, TransformOptions{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateGifFromImages_AllEmpty(t *testing.T) {
	p := NewPipeline(nil, nil, zaptest.NewLogger(t), PipelineConfig{})

	_, err := p.CreateGifFromImages(context.Background(), []image.Image{nil, nil}, 0.5, TransformOptions{}, nil)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestMonotonicProgress(t *testing.T) {
	var got []float64
	fn := monotonic(func(f float64, _ string) { got = append(got, f) })

	for _, f := range []float64{-0.5, 0.2, 0.1, 0.6, 1.4, 0.9} {
		fn(f, "")
	}
	assert.Equal(t, []float64{0, 0.2, 0.2, 0.6, 1, 1}, got)
}
