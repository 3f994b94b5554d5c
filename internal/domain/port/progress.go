package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/yelerty/stickermaker/internal/domain/entity"
)

// ProgressSink receives every progress event of a running job.
type ProgressSink interface {
	PublishProgress(ctx context.Context, ev entity.ProgressEvent) error
}

// CancelStore holds cancellation requests made through the API.
type CancelStore interface {
	RequestCancel(ctx context.Context, jobID uuid.UUID) error
	IsCancelRequested(ctx context.Context, jobID uuid.UUID) (bool, error)
	ClearCancel(ctx context.Context, jobID uuid.UUID) error
}
