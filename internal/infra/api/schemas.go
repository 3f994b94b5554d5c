package api

import (
	"time"

	"github.com/yelerty/stickermaker/internal/domain/entity"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type JobResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Kind            string     `json:"kind"`
	Status          string     `json:"status"`
	Progress        float64    `json:"progress"`
	StageMessage    string     `json:"stage_message,omitempty"`
	SourceKey       string     `json:"source_key"`
	OutputKey       string     `json:"output_key,omitempty"`
	PackKey         string     `json:"pack_key,omitempty"`
	RequestedFrames int        `json:"requested_frames"`
	FrameCount      int        `json:"frame_count"`
	Width           int        `json:"width,omitempty"`
	Height          int        `json:"height,omitempty"`
	Attempt         int        `json:"attempt"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func JobToResponse(j *entity.GifJob) JobResponse {
	return JobResponse{
		ID:              j.ID.String(),
		UserID:          j.UserID,
		Kind:            string(j.Kind),
		Status:          string(j.Status),
		Progress:        j.Progress,
		StageMessage:    j.StageMessage,
		SourceKey:       j.SourceKey,
		OutputKey:       j.OutputKey,
		PackKey:         j.PackKey,
		RequestedFrames: j.RequestedFrames,
		FrameCount:      j.FrameCount,
		Width:           j.Width,
		Height:          j.Height,
		Attempt:         j.Attempt,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		CompletedAt:     j.CompletedAt,
	}
}

type CancelResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
