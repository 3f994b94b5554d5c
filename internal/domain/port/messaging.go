package port

import "context"

// StatusPublisher announces job state changes to downstream consumers.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

// DLQPublisher parks a raw request that will never succeed, with the reason attached.
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
