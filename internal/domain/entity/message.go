package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/yelerty/stickermaker/internal/imagefx"
)

// GifRequestMessage is the inbound message from the gif.request queue. Which fields are
// read depends on Kind.
type GifRequestMessage struct {
	JobID  uuid.UUID `json:"job_id"`
	UserID string    `json:"user_id"`
	Kind   JobKind   `json:"kind"`

	VideoKey      string   `json:"video_key,omitempty"`
	ImageKeys     []string `json:"image_keys,omitempty"`
	BackgroundKey string   `json:"background_key,omitempty"`

	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	FrameCount   int     `json:"frame_count"`
	DelaySeconds float64 `json:"delay_seconds"`

	AspectRatio      string                    `json:"aspect_ratio,omitempty"`
	CropAnchor       string                    `json:"crop_anchor,omitempty"`
	RemoveBackground bool                      `json:"remove_background"`
	ScaleAnimation   string                    `json:"scale_animation,omitempty"`
	Adjust           *imagefx.Adjustments      `json:"adjust,omitempty"`
	Composite        *imagefx.CompositeOptions `json:"composite,omitempty"`
	ExportPack       bool                      `json:"export_pack"`

	UserEmail string `json:"user_email"`
}

// SourceKey is the object key recorded on the job for this request.
func (m GifRequestMessage) SourceKey() string {
	switch m.Kind {
	case JobKindVideoGif:
		return m.VideoKey
	case JobKindImageGif, JobKindSticker:
		if len(m.ImageKeys) > 0 {
			return m.ImageKeys[0]
		}
	}
	return ""
}

// RequestedFrames is the frame count the job is expected to produce.
func (m GifRequestMessage) RequestedFrames() int {
	switch m.Kind {
	case JobKindVideoGif:
		return m.FrameCount
	case JobKindImageGif:
		return len(m.ImageKeys)
	case JobKindSticker:
		return 1
	}
	return 0
}

// GifStatusMessage is the outbound message published to the gif.status queue.
type GifStatusMessage struct {
	JobID           uuid.UUID `json:"job_id"`
	UserID          string    `json:"user_id"`
	Kind            JobKind   `json:"kind"`
	Status          JobStatus `json:"status"`
	SourceKey       string    `json:"source_key"`
	OutputKey       string    `json:"output_key,omitempty"`
	PackKey         string    `json:"pack_key,omitempty"`
	RequestedFrames int       `json:"requested_frames,omitempty"`
	FrameCount      int       `json:"frame_count,omitempty"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Attempt         int       `json:"attempt"`
	MaxAttempts     int       `json:"max_attempts"`
}

func NewGifStatusMessage(job *GifJob) GifStatusMessage {
	return GifStatusMessage{
		JobID:           job.ID,
		UserID:          job.UserID,
		Kind:            job.Kind,
		Status:          job.Status,
		SourceKey:       job.SourceKey,
		OutputKey:       job.OutputKey,
		PackKey:         job.PackKey,
		RequestedFrames: job.RequestedFrames,
		FrameCount:      job.FrameCount,
		Width:           job.Width,
		Height:          job.Height,
		ErrorMessage:    job.ErrorMessage,
		Attempt:         job.Attempt,
		MaxAttempts:     job.MaxAttempts,
	}
}

// ProgressEvent is one progress report, fanned out to the cache, the event stream and
// websocket subscribers.
type ProgressEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	Status   JobStatus `json:"status"`
	Fraction float64   `json:"fraction"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}
