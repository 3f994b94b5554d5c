package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/yelerty/stickermaker/internal/domain/entity"
)

const progressTTL = 24 * time.Hour

// ErrNoProgress is returned for jobs that never reported progress or whose entry expired.
var ErrNoProgress = errors.New("no progress recorded")

// ProgressCache keeps the latest progress event of each job in a hash so the API can
// answer status polls without touching postgres.
type ProgressCache struct {
	client *goredis.Client
}

func NewProgressCache(client *goredis.Client) *ProgressCache {
	return &ProgressCache{client: client}
}

func (c *ProgressCache) PublishProgress(ctx context.Context, ev entity.ProgressEvent) error {
	key := progressKey(ev.JobID.String())

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(ev.Status),
		"fraction", strconv.FormatFloat(ev.Fraction, 'f', -1, 64),
		"message", ev.Message,
		"at", ev.At.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, progressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

func (c *ProgressCache) GetProgress(ctx context.Context, jobID uuid.UUID) (*entity.ProgressEvent, error) {
	fields, err := c.client.HGetAll(ctx, progressKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNoProgress
	}
	return decodeProgress(jobID, fields)
}

func decodeProgress(jobID uuid.UUID, fields map[string]string) (*entity.ProgressEvent, error) {
	fraction, err := strconv.ParseFloat(fields["fraction"], 64)
	if err != nil {
		return nil, fmt.Errorf("parse fraction: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, fields["at"])
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	return &entity.ProgressEvent{
		JobID:    jobID,
		Status:   entity.JobStatus(fields["status"]),
		Fraction: fraction,
		Message:  fields["message"],
		At:       at,
	}, nil
}
