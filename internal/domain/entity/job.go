package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusRetrying   JobStatus = "RETRYING"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Final reports whether no further processing will happen for a job in this status.
// RETRYING jobs are waiting for their delivery to come back.
func (s JobStatus) Final() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type JobKind string

const (
	JobKindVideoGif JobKind = "video_gif"
	JobKindImageGif JobKind = "image_gif"
	JobKindSticker  JobKind = "sticker"
)

func (k JobKind) Valid() bool {
	switch k {
	case JobKindVideoGif, JobKindImageGif, JobKindSticker:
		return true
	}
	return false
}

// GifJob is the persisted state of one request. Progress only moves forward within an
// attempt.
type GifJob struct {
	ID              uuid.UUID
	UserID          string
	Kind            JobKind
	SourceKey       string
	OutputKey       string
	PackKey         string
	Status          JobStatus
	RequestedFrames int
	FrameCount      int
	Width           int
	Height          int
	Progress        float64
	StageMessage    string
	Attempt         int
	MaxAttempts     int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func NewGifJob(userID string, kind JobKind, sourceKey string, requestedFrames, maxAttempts int) *GifJob {
	now := time.Now().UTC()
	return &GifJob{
		ID:              uuid.New(),
		UserID:          userID,
		Kind:            kind,
		SourceKey:       sourceKey,
		RequestedFrames: requestedFrames,
		Status:          JobStatusPending,
		MaxAttempts:     maxAttempts,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (j *GifJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.Progress = 0
	j.StageMessage = ""
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

// MarkProgress records a progress report. It returns false and leaves the job alone
// when fraction would move progress backwards.
func (j *GifJob) MarkProgress(fraction float64, message string) bool {
	if fraction < j.Progress {
		return false
	}
	j.Progress = min(fraction, 1)
	j.StageMessage = message
	j.UpdatedAt = time.Now().UTC()
	return true
}

func (j *GifJob) MarkCompleted(outputKey, packKey string, frameCount, width, height int) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.OutputKey = outputKey
	j.PackKey = packKey
	j.FrameCount = frameCount
	j.Width = width
	j.Height = height
	j.Progress = 1
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *GifJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

// MarkRetrying records a failed attempt that will run again.
func (j *GifJob) MarkRetrying(errMsg string) {
	j.Status = JobStatusRetrying
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *GifJob) MarkCancelled() {
	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	j.StageMessage = "cancelled"
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *GifJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

func (j *GifJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusCancelled
}

// Degraded reports whether fewer frames were encoded than requested.
func (j *GifJob) Degraded() bool {
	return j.Status == JobStatusCompleted && j.RequestedFrames > 0 && j.FrameCount < j.RequestedFrames
}
