package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
)

// PackWriter writes GIF frames as a zip of numbered PNG stickers.
type PackWriter struct{}

func NewPackWriter() *PackWriter {
	return &PackWriter{}
}

func EntryName(i int) string {
	return fmt.Sprintf("sticker_%d.png", i)
}

func (p *PackWriter) WritePack(ctx context.Context, frames []image.Image, w io.Writer) error {
	if len(frames) == 0 {
		return fmt.Errorf("write pack: no frames")
	}

	zw := zip.NewWriter(w)
	now := time.Now().UTC()

	for i, frame := range frames {
		select {
		case <-ctx.Done():
			zw.Close()
			return ctx.Err()
		default:
		}

		header := &zip.FileHeader{
			Name:     EntryName(i),
			Method:   zip.Deflate,
			Modified: now,
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			zw.Close()
			return fmt.Errorf("add %s to pack: %w", header.Name, err)
		}
		if err := imaging.Encode(entry, frame, imaging.PNG); err != nil {
			zw.Close()
			return fmt.Errorf("encode %s: %w", header.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish pack: %w", err)
	}
	return nil
}
