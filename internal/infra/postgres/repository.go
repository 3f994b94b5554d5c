package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yelerty/stickermaker/internal/domain/entity"
	"github.com/yelerty/stickermaker/internal/domain/port"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.GifJob) error {
	query := `
		INSERT INTO gif_jobs (
			id, user_id, kind, source_key, output_key, pack_key, status,
			requested_frames, frame_count, width, height, progress, stage_message,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, string(job.Kind), job.SourceKey, job.OutputKey, job.PackKey, string(job.Status),
		job.RequestedFrames, job.FrameCount, job.Width, job.Height, job.Progress, job.StageMessage,
		job.Attempt, job.MaxAttempts, job.ErrorMessage, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.GifJob) error {
	query := `
		UPDATE gif_jobs SET
			status=$2, output_key=$3, pack_key=$4, frame_count=$5, width=$6, height=$7,
			progress=$8, stage_message=$9, attempt=$10, error_message=$11,
			updated_at=$12, completed_at=$13
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.OutputKey, job.PackKey, job.FrameCount, job.Width, job.Height,
		job.Progress, job.StageMessage, job.Attempt, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// UpdateProgress moves the stored progress forward; older reports are ignored.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, fraction float64, message string) error {
	query := `
		UPDATE gif_jobs SET progress=$2, stage_message=$3, updated_at=$4
		WHERE id=$1 AND progress <= $2`

	_, err := r.pool.Exec(ctx, query, id, fraction, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.GifJob, error) {
	query := `
		SELECT id, user_id, kind, source_key, output_key, pack_key, status,
			requested_frames, frame_count, width, height, progress, stage_message,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		FROM gif_jobs WHERE id=$1`

	job := &entity.GifJob{}
	var kind, status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &kind, &job.SourceKey, &job.OutputKey, &job.PackKey, &status,
		&job.RequestedFrames, &job.FrameCount, &job.Width, &job.Height, &job.Progress, &job.StageMessage,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Kind = entity.JobKind(kind)
	job.Status = entity.JobStatus(status)
	return job, nil
}
