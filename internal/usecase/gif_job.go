package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yelerty/stickermaker/internal/domain/entity"
	"github.com/yelerty/stickermaker/internal/domain/port"
	"github.com/yelerty/stickermaker/internal/gifmaker"
	"github.com/yelerty/stickermaker/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errCancelRequested = errors.New("cancelled by user")

// errPermanent marks failures that no retry can fix.
var errPermanent = errors.New("permanent failure")

type GifJobUseCase struct {
	repo         port.JobRepository
	storage      port.MediaStorage
	maker        port.GifMaker
	prober       port.MediaProber
	packs        port.PackWriter
	publisher    port.StatusPublisher
	dlq          port.DLQPublisher
	notifier     port.FailureNotifier
	cancels      port.CancelStore
	sinks        []port.ProgressSink
	logger       *zap.Logger
	tempDir      string
	maxRetry     int
	pollInterval time.Duration
}

type GifJobDeps struct {
	Repo      port.JobRepository
	Storage   port.MediaStorage
	Maker     port.GifMaker
	Prober    port.MediaProber
	Packs     port.PackWriter
	Publisher port.StatusPublisher
	DLQ       port.DLQPublisher
	Notifier  port.FailureNotifier
	Cancels   port.CancelStore
	Sinks     []port.ProgressSink
}

type GifJobConfig struct {
	TempDir            string
	MaxRetries         int
	CancelPollInterval time.Duration
}

func NewGifJobUseCase(deps GifJobDeps, logger *zap.Logger, cfg GifJobConfig) *GifJobUseCase {
	if cfg.CancelPollInterval <= 0 {
		cfg.CancelPollInterval = 500 * time.Millisecond
	}
	return &GifJobUseCase{
		repo:         deps.Repo,
		storage:      deps.Storage,
		maker:        deps.Maker,
		prober:       deps.Prober,
		packs:        deps.Packs,
		publisher:    deps.Publisher,
		dlq:          deps.DLQ,
		notifier:     deps.Notifier,
		cancels:      deps.Cancels,
		sinks:        deps.Sinks,
		logger:       logger,
		tempDir:      cfg.TempDir,
		maxRetry:     cfg.MaxRetries,
		pollInterval: cfg.CancelPollInterval,
	}
}

// Execute handles one gif.request delivery. A nil return acks the message; an error
// requeues it with backoff.
func (uc *GifJobUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "GifJobUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.GifRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if !msg.Kind.Valid() {
		uc.logger.Error("unknown job kind", zap.String("kind", string(msg.Kind)), zap.String("job_id", msg.JobID.String()))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unknown_kind: "+string(msg.Kind))
		return nil
	}
	if problem := identityProblem(msg); problem != "" {
		uc.logger.Error("request cannot be tracked", zap.String("reason", problem), zap.String("job_id", msg.JobID.String()))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: "+problem)
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.kind", string(msg.Kind)),
		attribute.String("job.source_key", msg.SourceKey()),
	)

	log := uc.logger.With(
		zap.String("job_id", msg.JobID.String()),
		zap.String("kind", string(msg.Kind)),
		zap.String("source_key", msg.SourceKey()),
	)

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if errors.Is(err, port.ErrJobNotFound) {
		job = entity.NewGifJob(msg.UserID, msg.Kind, msg.SourceKey(), msg.RequestedFrames(), uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	} else if err != nil {
		log.Error("failed to load job", zap.Error(err))
		return fmt.Errorf("load job: %w", err)
	}

	if job.IsTerminal() {
		log.Info("job already finished, dropping redelivery", zap.String("status", string(job.Status)))
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", log)
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}
	uc.publishStatus(ctx, job, log)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	reporter := newProgressReporter(ctx, job, uc.repo, uc.sinks, log)

	if uc.cancelRequested(ctx, job.ID, log) {
		uc.handleCancelled(ctx, job, reporter, log)
		return nil
	}

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)
	go uc.watchCancel(runCtx, job.ID, cancelRun, log)

	result, err := uc.run(runCtx, job, msg, reporter, log)
	if err != nil {
		return uc.handleRunError(ctx, runCtx, job, msg, rawMsg, reporter, err, log)
	}

	job.MarkCompleted(result.outputKey, result.packKey, result.frameCount, result.width, result.height)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}
	reporter.finish()
	uc.publishStatus(ctx, job, log)

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	fields := []zap.Field{
		zap.String("output_key", job.OutputKey),
		zap.Int("frame_count", job.FrameCount),
		zap.Int("width", job.Width),
		zap.Int("height", job.Height),
	}
	if job.PackKey != "" {
		fields = append(fields, zap.String("pack_key", job.PackKey))
	}
	if job.Degraded() {
		log.Warn("job completed with dropped frames", append(fields, zap.Int("requested_frames", job.RequestedFrames))...)
	} else {
		log.Info("job completed successfully", fields...)
	}
	return nil
}

func (uc *GifJobUseCase) run(ctx context.Context, job *entity.GifJob, msg entity.GifRequestMessage, reporter *progressReporter, log *zap.Logger) (*jobResult, error) {
	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	switch msg.Kind {
	case entity.JobKindVideoGif:
		return uc.runVideoGif(ctx, job, msg, workDir, reporter, log)
	case entity.JobKindImageGif:
		return uc.runImageGif(ctx, job, msg, workDir, reporter, log)
	default:
		return uc.runSticker(ctx, job, msg, workDir, reporter, log)
	}
}

// watchCancel polls the cancel flag until the run ends and cancels it when the flag
// shows up.
func (uc *GifJobUseCase) watchCancel(ctx context.Context, jobID uuid.UUID, cancel context.CancelCauseFunc, log *zap.Logger) {
	if uc.cancels == nil {
		return
	}
	ticker := time.NewTicker(uc.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if uc.cancelRequested(ctx, jobID, log) {
			log.Info("cancellation requested, stopping run")
			cancel(errCancelRequested)
			return
		}
	}
}

func (uc *GifJobUseCase) cancelRequested(ctx context.Context, jobID uuid.UUID, log *zap.Logger) bool {
	if uc.cancels == nil {
		return false
	}
	requested, err := uc.cancels.IsCancelRequested(ctx, jobID)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug("cancel flag lookup failed", zap.Error(err))
		}
		return false
	}
	return requested
}

func (uc *GifJobUseCase) handleRunError(
	ctx context.Context,
	runCtx context.Context,
	job *entity.GifJob,
	msg entity.GifRequestMessage,
	rawMsg []byte,
	reporter *progressReporter,
	runErr error,
	log *zap.Logger,
) error {
	switch {
	case errors.Is(context.Cause(runCtx), errCancelRequested):
		uc.handleCancelled(ctx, job, reporter, log)
		return nil
	case ctx.Err() != nil:
		log.Warn("worker stopping, job left for redelivery", zap.Error(runErr))
		return fmt.Errorf("interrupted: %w", runErr)
	case isPermanent(runErr):
		log.Error("job failed permanently", zap.Error(runErr))
		uc.handlePermanentFailure(ctx, job, msg, rawMsg, runErr.Error(), log)
		reporter.finish()
		return nil
	default:
		log.Error("job failed", zap.Error(runErr))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, runErr.Error(), reporter, log)
	}
}

// identityProblem reports why a request cannot own a job row and output keys.
func identityProblem(msg entity.GifRequestMessage) string {
	switch {
	case msg.JobID == uuid.Nil:
		return "job_id is required"
	case strings.TrimSpace(msg.UserID) == "":
		return "user_id is required"
	case strings.ContainsAny(msg.UserID, "/\\") || msg.UserID == "." || msg.UserID == "..":
		return "user_id must not contain path separators"
	}
	return ""
}

func isPermanent(err error) bool {
	return errors.Is(err, errPermanent) ||
		errors.Is(err, port.ErrObjectNotFound) ||
		errors.Is(err, gifmaker.ErrInvalidInput) ||
		errors.Is(err, gifmaker.ErrEncoding)
}

func (uc *GifJobUseCase) handleCancelled(ctx context.Context, job *entity.GifJob, reporter *progressReporter, log *zap.Logger) {
	job.MarkCancelled()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to CANCELLED", zap.Error(err))
	}
	if err := uc.cancels.ClearCancel(ctx, job.ID); err != nil {
		log.Warn("failed to clear cancel flag", zap.Error(err))
	}
	reporter.finish()
	uc.publishStatus(ctx, job, log)
	metrics.JobsProcessedTotal.WithLabelValues("cancelled").Inc()
	log.Info("job cancelled")
}

func (uc *GifJobUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.GifJob,
	msg entity.GifRequestMessage,
	rawMsg []byte,
	errMsg string,
	reporter *progressReporter,
	log *zap.Logger,
) error {
	if !job.CanRetry() {
		uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
		reporter.finish()
		return nil
	}

	job.MarkRetrying(errMsg)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to RETRYING", zap.Error(err))
	}
	reporter.finish()

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *GifJobUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.GifJob,
	msg entity.GifRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, log)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		if err := uc.notifier.NotifyFailure(ctx, port.FailureNotice{
			UserEmail: msg.UserEmail,
			JobID:     job.ID.String(),
			Kind:      string(job.Kind),
			SourceKey: job.SourceKey,
			Attempts:  job.Attempt,
			Reason:    errMsg,
		}); err != nil {
			log.Warn("failure notification not sent", zap.Error(err))
		}
	}
}

func (uc *GifJobUseCase) publishStatus(ctx context.Context, job *entity.GifJob, log *zap.Logger) {
	data, _ := json.Marshal(entity.NewGifStatusMessage(job))
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
