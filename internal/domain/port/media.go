package port

import (
	"context"
	"image"
	"io"
)

type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
}

type MediaProber interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}

// PackWriter writes frames as a sticker-pack archive.
type PackWriter interface {
	WritePack(ctx context.Context, frames []image.Image, w io.Writer) error
}
