package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const cancelTTL = 24 * time.Hour

// CancelStore records cancellation requests as short-lived flags the worker polls.
type CancelStore struct {
	client *goredis.Client
}

func NewCancelStore(client *goredis.Client) *CancelStore {
	return &CancelStore{client: client}
}

func (s *CancelStore) RequestCancel(ctx context.Context, jobID uuid.UUID) error {
	if err := s.client.Set(ctx, cancelKey(jobID.String()), "1", cancelTTL).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	return nil
}

func (s *CancelStore) IsCancelRequested(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, cancelKey(jobID.String())).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel flag: %w", err)
	}
	return n > 0, nil
}

func (s *CancelStore) ClearCancel(ctx context.Context, jobID uuid.UUID) error {
	if err := s.client.Del(ctx, cancelKey(jobID.String())).Err(); err != nil {
		return fmt.Errorf("clear cancel flag: %w", err)
	}
	return nil
}
