package kafka

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Replayer переигрывает сообщения из DLQ. Понимает два формата:
// конверт outbox с domain.DeadLetter внутри и сырое сообщение, отправленное Consumer.
type Replayer struct {
	producer  *Producer
	publisher *OutboxTopicPublisher
	logger    *log.Entry
	dryRun    bool

	replayed atomic.Int64
	skipped  atomic.Int64
}

// NewReplayer создаёт обработчик DLQ. В режиме dryRun сообщения только логируются.
func NewReplayer(producer *Producer, router TopicRouter, dryRun bool, logger *log.Entry) *Replayer {
	if logger == nil {
		logger = log.WithField("component", "dlq-replayer")
	}
	return &Replayer{
		producer:  producer,
		publisher: NewOutboxPublisher(producer, router),
		logger:    logger,
		dryRun:    dryRun,
	}
}

// Handle реализует MessageHandler.
func (r *Replayer) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	if env, err := ParseEnvelope(message); err == nil {
		if dl, err := env.DeadLetter(); err == nil {
			return r.replayOutbox(ctx, dl.Message().ID, func() error {
				return r.publisher.Publish(ctx, dl.Message())
			})
		}
	}

	topic, ok := headerValue(message, HeaderOriginalTopic)
	if !ok || topic == "" {
		r.skipped.Add(1)
		r.logger.WithFields(log.Fields{
			"partition": message.Partition,
			"offset":    message.Offset,
		}).Warn("dlq message has no original topic, skipping")
		return nil
	}

	retryCount := 0
	if raw, ok := headerValue(message, HeaderRetryCount); ok {
		retryCount, _ = strconv.Atoi(raw)
	}
	headers := map[string]string{HeaderRetryCount: strconv.Itoa(retryCount + 1)}
	if eventType, ok := headerValue(message, HeaderEventType); ok {
		headers[HeaderEventType] = eventType
	}
	return r.replayOutbox(ctx, string(message.Key), func() error {
		return r.producer.Send(ctx, topic, string(message.Key), message.Value, headers)
	})
}

func (r *Replayer) replayOutbox(ctx context.Context, id string, send func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.dryRun {
		r.skipped.Add(1)
		r.logger.WithField("id", id).Info("dry run: message would be replayed")
		return nil
	}
	if err := send(); err != nil {
		return fmt.Errorf("replay %s: %w", id, err)
	}
	r.replayed.Add(1)
	r.logger.WithField("id", id).Info("dlq message replayed")
	return nil
}

// Stats возвращает число переигранных и пропущенных сообщений.
func (r *Replayer) Stats() (replayed, skipped int64) {
	return r.replayed.Load(), r.skipped.Load()
}
