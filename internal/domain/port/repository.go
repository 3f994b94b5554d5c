package port

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/yelerty/stickermaker/internal/domain/entity"
)

// ErrJobNotFound is returned by FindByID for unknown ids.
var ErrJobNotFound = errors.New("job not found")

type JobRepository interface {
	Create(ctx context.Context, job *entity.GifJob) error
	Update(ctx context.Context, job *entity.GifJob) error
	UpdateProgress(ctx context.Context, id uuid.UUID, fraction float64, message string) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.GifJob, error)
}
