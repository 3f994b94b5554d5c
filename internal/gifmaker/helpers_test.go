package gifmaker

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
)

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

type fakeDecoder struct {
	mu      sync.Mutex
	width   int
	height  int
	calls   []float64
	failAll bool
	failIdx map[int]bool
}

func newFakeDecoder(w, h int) *fakeDecoder {
	return &fakeDecoder{width: w, height: h, failIdx: map[int]bool{}}
}

func (d *fakeDecoder) DecodeFrame(_ context.Context, _ MediaSource, at float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := len(d.calls)
	d.calls = append(d.calls, at)
	if d.failAll || d.failIdx[idx] {
		return nil, errors.New("decoder: no frame at timestamp")
	}
	return gradientImage(d.width, d.height), nil
}

func (d *fakeDecoder) times() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.calls...)
}

// fakeSegmenter clears the left half of every image it is given.
type fakeSegmenter struct {
	mu        sync.Mutex
	calls     int
	failCalls map[int]bool
	shrink    bool
	outputs   map[image.Image]image.Image
}

func newFakeSegmenter() *fakeSegmenter {
	return &fakeSegmenter{failCalls: map[int]bool{}, outputs: map[image.Image]image.Image{}}
}

func (s *fakeSegmenter) RemoveBackground(_ context.Context, img image.Image) (image.Image, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	fail := s.failCalls[call]
	s.mu.Unlock()

	if fail {
		return nil, errors.New("segmenter: no foreground instance")
	}

	b := img.Bounds()
	if s.shrink {
		return image.NewNRGBA(image.Rect(0, 0, b.Dx()/2, b.Dy()/2)), nil
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if x < b.Dx()/2 {
				continue
			}
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	s.mu.Lock()
	s.outputs[img] = out
	s.mu.Unlock()
	return out, nil
}

func (s *fakeSegmenter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func framesOf(n, w, h int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{Index: i, Time: float64(i), Image: gradientImage(w, h)}
	}
	return frames
}

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y).RGBA()
	return a
}
