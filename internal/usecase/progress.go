package usecase

import (
	"context"
	"sync"

	"github.com/yelerty/stickermaker/internal/domain/entity"
	"github.com/yelerty/stickermaker/internal/domain/port"
	"go.uber.org/zap"
)

// rowStep is how far progress must move before the job row is written again. Sinks see
// every report.
const rowStep = 0.05

// progressReporter fans pipeline progress out to the job row and every sink. Writes use
// a context detached from the run so the last reports land even after a cancel.
type progressReporter struct {
	mu      sync.Mutex
	ctx     context.Context
	job     *entity.GifJob
	repo    port.JobRepository
	sinks   []port.ProgressSink
	logger  *zap.Logger
	lastRow float64
}

func newProgressReporter(ctx context.Context, job *entity.GifJob, repo port.JobRepository, sinks []port.ProgressSink, logger *zap.Logger) *progressReporter {
	return &progressReporter{
		ctx:    context.WithoutCancel(ctx),
		job:    job,
		repo:   repo,
		sinks:  sinks,
		logger: logger,
	}
}

func (r *progressReporter) report(fraction float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.job.MarkProgress(fraction, message) {
		return
	}

	if r.job.Progress-r.lastRow >= rowStep || r.job.Progress >= 1 {
		if err := r.repo.UpdateProgress(r.ctx, r.job.ID, r.job.Progress, message); err != nil {
			r.logger.Warn("failed to persist progress", zap.Error(err))
		} else {
			r.lastRow = r.job.Progress
		}
	}
	r.publish()
}

// finish sends the job's final state to the sinks.
func (r *progressReporter) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish()
}

func (r *progressReporter) publish() {
	ev := entity.ProgressEvent{
		JobID:    r.job.ID,
		Status:   r.job.Status,
		Fraction: r.job.Progress,
		Message:  r.job.StageMessage,
		At:       r.job.UpdatedAt,
	}
	if r.job.Status == entity.JobStatusFailed || r.job.Status == entity.JobStatusRetrying {
		ev.Message = r.job.ErrorMessage
	}
	for _, sink := range r.sinks {
		if err := sink.PublishProgress(r.ctx, ev); err != nil {
			r.logger.Warn("failed to publish progress", zap.Error(err))
		}
	}
}
