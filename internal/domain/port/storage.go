package port

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by DownloadInput when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// MediaStorage reads user uploads from the input bucket and writes results to the
// output bucket.
type MediaStorage interface {
	DownloadInput(ctx context.Context, objectKey string, destPath string) error
	UploadOutput(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
}
