package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const maxReasonLen = 1024

// Publisher serialises publishes on one channel; amqp channels are not safe for
// concurrent use and every consumer worker publishes status updates.
type Publisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
	appID    string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange, appID: "stickermaker-worker"}, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, key, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

func jsonPublishing(appID, msgType string, body []byte, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		AppId:        appID,
		Type:         msgType,
		Headers:      headers,
		Body:         body,
	}
}

type StatusPublisher struct {
	pub *Publisher
}

func NewStatusPublisher(pub *Publisher) *StatusPublisher {
	return &StatusPublisher{pub: pub}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.pub.publish(ctx, sp.pub.exchange, StatusRoutingKey,
		jsonPublishing(sp.pub.appID, StatusRoutingKey, msg, nil))
}

// DLQPublisher writes straight to the dead-letter queue through the default exchange.
type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.publish(ctx, "", dp.queue,
		jsonPublishing(dp.pub.appID, RequestRoutingKey, msg, dlqHeaders(reason, time.Now())))
}

func dlqHeaders(reason string, at time.Time) amqp.Table {
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	return amqp.Table{
		"x-dlq-reason": reason,
		"x-dlq-at":     at.UTC().Format(time.RFC3339),
	}
}
