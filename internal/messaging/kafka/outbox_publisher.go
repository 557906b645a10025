package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в topic, выбранный TopicRouter.
type OutboxTopicPublisher struct {
	producer *Producer
	router   TopicRouter
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, router TopicRouter) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{producer: producer, router: router}
}

// Publish отправляет сообщение в конверте Envelope. Ключом служит агрегат,
// поэтому порядок событий одного заказа сохраняется.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	env := NewEnvelope(msg, p.producer.now())
	return p.producer.PublishJSON(ctx, p.router.TopicFor(msg.EventType), env.Key(), env, map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
	})
}

// DLQPublisher отправляет неопубликованные outbox-сообщения в dead letter topic.
// Payload входящего сообщения содержит сериализованный domain.DeadLetter.
type DLQPublisher struct {
	producer *Producer
	router   TopicRouter
	topic    string
}

// NewDLQPublisher создаёт паблишер DLQ. Пустой topic заменяется TopicDeadLetterQueue.
func NewDLQPublisher(producer *Producer, router TopicRouter, topic string) *DLQPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &DLQPublisher{producer: producer, router: router, topic: topic}
}

func (p *DLQPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	headers := map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
		HeaderOriginalTopic: p.router.TopicFor(msg.EventType),
	}
	var dl domain.DeadLetter
	if err := json.Unmarshal(msg.Payload, &dl); err == nil {
		headers[HeaderRetryCount] = strconv.Itoa(dl.Attempts)
		headers[HeaderErrorMessage] = dl.Error
		if !dl.FailedAt.IsZero() {
			headers[HeaderFailedAt] = dl.FailedAt.UTC().Format(time.RFC3339)
		}
	}

	env := NewEnvelope(msg, p.producer.now())
	return p.producer.PublishJSON(ctx, p.topic, env.Key(), env, headers)
}

var (
	_ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
	_ domain.OutboxPublisher = (*DLQPublisher)(nil)
)
