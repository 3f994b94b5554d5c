package gifmaker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func decodeGIF(t *testing.T, data []byte) *gif.GIF {
	t.Helper()
	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	return g
}

func TestEncode_LoopsForeverWithUniformDelay(t *testing.T) {
	enc := NewEncoder(zaptest.NewLogger(t))
	frames := []image.Image{gradientImage(32, 24), gradientImage(32, 24), gradientImage(32, 24), gradientImage(32, 24)}

	out, err := enc.Encode(context.Background(), frames, 0.15)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out.Bytes, []byte("GIF89a")))
	assert.Equal(t, 4, out.FrameCount)
	assert.Equal(t, 32, out.Width)
	assert.Equal(t, 24, out.Height)
	assert.True(t, out.Loop)
	assert.Equal(t, 0.15, out.DelaySeconds)

	g := decodeGIF(t, out.Bytes)
	assert.Len(t, g.Image, 4)
	assert.Equal(t, 0, g.LoopCount)
	assert.Equal(t, []int{15, 15, 15, 15}, g.Delay)
	for _, d := range g.Disposal {
		assert.Equal(t, byte(gif.DisposalBackground), d)
	}
}

func TestEncode_SkipsUnconvertibleFrames(t *testing.T) {
	enc := NewEncoder(zaptest.NewLogger(t))
	frames := []image.Image{gradientImage(8, 8), nil, image.NewNRGBA(image.Rect(0, 0, 0, 0)), gradientImage(8, 8)}

	out, err := enc.Encode(context.Background(), frames, 0.1)
	require.NoError(t, err)

	assert.Equal(t, 2, out.FrameCount)
	assert.Len(t, out.Frames, 2)
	assert.Len(t, decodeGIF(t, out.Bytes).Image, 2)
}

func TestEncode_NoFrames(t *testing.T) {
	enc := NewEncoder(zaptest.NewLogger(t))

	out, err := enc.Encode(context.Background(), nil, 0.1)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Nil(t, out)

	out, err = enc.Encode(context.Background(), []image.Image{nil}, 0.1)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Nil(t, out)
}

func TestEncode_KeepsTransparency(t *testing.T) {
	enc := NewEncoder(zaptest.NewLogger(t))
	img := solidImage(10, 10, color.NRGBA{G: 180, A: 255})
	for y := 0; y < 10; y++ {
		for x := 0; x < 5; x++ {
			img.Set(x, y, color.NRGBA{})
		}
	}
	// a black opaque pixel must not collide with the transparent index
	img.Set(9, 9, color.NRGBA{A: 255})

	out, err := enc.Encode(context.Background(), []image.Image{img, img}, 0.1)
	require.NoError(t, err)

	g := decodeGIF(t, out.Bytes)
	frame := g.Image[0]
	assert.Zero(t, alphaAt(frame, 0, 0))
	assert.Zero(t, alphaAt(frame, 4, 9))
	assert.Equal(t, uint32(0xffff), alphaAt(frame, 5, 0))
	assert.Equal(t, uint32(0xffff), alphaAt(frame, 9, 9))
}

func TestEncode_CanvasFitsLargestFrame(t *testing.T) {
	enc := NewEncoder(zaptest.NewLogger(t))

	out, err := enc.Encode(context.Background(), []image.Image{gradientImage(10, 30), gradientImage(20, 15)}, 0.1)
	require.NoError(t, err)

	assert.Equal(t, 20, out.Width)
	assert.Equal(t, 30, out.Height)
	g := decodeGIF(t, out.Bytes)
	assert.Equal(t, 20, g.Config.Width)
	assert.Equal(t, 30, g.Config.Height)
}

func TestEncode_Cancelled(t *testing.T) {
	enc := NewEncoder(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := enc.Encode(ctx, []image.Image{gradientImage(4, 4)}, 0.1)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestDelayCentiseconds(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int
	}{
		{0.15, 15},
		{0.1, 10},
		{1, 100},
		{0.125, 13},
		{0.001, 1},
		{0, 1},
		{655.35, 65535},
		{700, 65535},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DelayCentiseconds(tt.seconds), "%v seconds", tt.seconds)
	}
}

func TestEncode_RejectsDelayBeyondGifField(t *testing.T) {
	enc := NewEncoder(zaptest.NewLogger(t))

	out, err := enc.Encode(context.Background(), []image.Image{gradientImage(8, 8)}, 700)
	assert.ErrorIs(t, err, ErrInvalidInput)
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "delay_seconds", inputErr.Field)
	assert.Nil(t, out)
}

func TestEncode_LongestDelayRoundTrips(t *testing.T) {
	enc := NewEncoder(zaptest.NewLogger(t))

	out, err := enc.Encode(context.Background(), []image.Image{gradientImage(8, 8), gradientImage(8, 8)}, MaxDelaySeconds)
	require.NoError(t, err)
	assert.Equal(t, []int{65535, 65535}, decodeGIF(t, out.Bytes).Delay)
	assert.Equal(t, 655.35, out.DelaySeconds)
}

func TestEncode_ReportsWrittenDelay(t *testing.T) {
	enc := NewEncoder(zaptest.NewLogger(t))

	tests := []struct {
		requested float64
		written   int
		reported  float64
	}{
		{0.125, 13, 0.13},
		{0.001, 1, 0.01},
	}
	for _, tt := range tests {
		out, err := enc.Encode(context.Background(), []image.Image{gradientImage(8, 8)}, tt.requested)
		require.NoError(t, err)
		assert.Equal(t, []int{tt.written}, decodeGIF(t, out.Bytes).Delay, "%v seconds", tt.requested)
		assert.Equal(t, tt.reported, out.DelaySeconds, "%v seconds", tt.requested)
	}
}
