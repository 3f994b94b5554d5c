package port

import (
	"context"
	"image"

	"github.com/yelerty/stickermaker/internal/gifmaker"
)

type GifMaker interface {
	CreateGif(ctx context.Context, req gifmaker.Request, onProgress gifmaker.ProgressFunc) (*gifmaker.GifOutput, error)
	CreateGifFromImages(ctx context.Context, images []image.Image, delaySeconds float64, opts gifmaker.TransformOptions, onProgress gifmaker.ProgressFunc) (*gifmaker.GifOutput, error)
	CreateSticker(ctx context.Context, req gifmaker.StickerRequest, onProgress gifmaker.ProgressFunc) (*gifmaker.StickerOutput, error)
}
