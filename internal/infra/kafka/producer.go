package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/IBM/sarama"
	"github.com/yelerty/stickermaker/internal/domain/entity"
	"go.uber.org/zap"
)

var errProducerBusy = errors.New("progress producer input is full")

// ProgressProducer streams progress events to a topic, keyed by job id so events of one
// job stay ordered within a partition. Sends never wait on the broker; delivery
// failures are logged from a background drain.
type ProgressProducer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger
	failed   atomic.Int64
	drained  chan struct{}
}

func NewProgressProducer(brokers []string, topic string, logger *zap.Logger) (*ProgressProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Return.Errors = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProgressProducer(p, topic, logger), nil
}

func newProgressProducer(p sarama.AsyncProducer, topic string, logger *zap.Logger) *ProgressProducer {
	pp := &ProgressProducer{producer: p, topic: topic, logger: logger, drained: make(chan struct{})}
	go pp.drainErrors()
	return pp
}

func (p *ProgressProducer) drainErrors() {
	defer close(p.drained)
	for perr := range p.producer.Errors() {
		p.failed.Add(1)
		p.logger.Warn("progress event not delivered", zap.String("topic", p.topic), zap.Error(perr.Err))
	}
}

// PublishProgress enqueues the event. A full input buffer drops it rather than
// stalling the render.
func (p *ProgressProducer) PublishProgress(_ context.Context, ev entity.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.JobID.String()),
		Value: sarama.ByteEncoder(data),
	}
	select {
	case p.producer.Input() <- msg:
		return nil
	default:
		p.failed.Add(1)
		return errProducerBusy
	}
}

// Failed counts events that were dropped or rejected by the broker.
func (p *ProgressProducer) Failed() int64 {
	return p.failed.Load()
}

// Close flushes buffered events and waits for the error drain to finish.
func (p *ProgressProducer) Close() error {
	p.producer.AsyncClose()
	<-p.drained
	return nil
}
