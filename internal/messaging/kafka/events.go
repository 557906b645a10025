package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "pedidos.order.events"
	TopicCatalogEvents   = "pedidos.catalog.events"
	TopicDeadLetterQueue = "pedidos.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// TopicRouter выбирает topic по типу события.
type TopicRouter struct {
	Orders  string
	Catalog string
}

// DefaultTopicRouter возвращает маршрутизацию по умолчанию.
func DefaultTopicRouter() TopicRouter {
	return TopicRouter{Orders: TopicOrderEvents, Catalog: TopicCatalogEvents}
}

// TopicFor возвращает topic для события: продвижения черновиков уходят в каталог,
// остальное в поток заказов.
func (r TopicRouter) TopicFor(eventType string) string {
	if eventType == domain.EventDraftPromoted && r.Catalog != "" {
		return r.Catalog
	}
	if r.Orders == "" {
		return TopicOrderEvents
	}
	return r.Orders
}

// Envelope — формат сообщения, публикуемого из outbox.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope заворачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, at time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   at,
	}
}

// Key — ключ партиционирования: события одного агрегата попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateType + ":" + e.AggregateID
	}
	return e.ID
}

// OrderEvent декодирует payload события заказа.
func (e Envelope) OrderEvent() (domain.OrderEvent, error) {
	var event domain.OrderEvent
	if e.AggregateType != domain.AggregateOrder {
		return event, fmt.Errorf("envelope %s carries %s, not an order event", e.ID, e.AggregateType)
	}
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return event, nil
}

// DeadLetter декодирует payload сообщения из DLQ.
func (e Envelope) DeadLetter() (domain.DeadLetter, error) {
	var dl domain.DeadLetter
	if err := json.Unmarshal(e.Payload, &dl); err != nil {
		return dl, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	if dl.OutboxID == "" || dl.EventType == "" {
		return dl, fmt.Errorf("dead letter %s is incomplete", e.ID)
	}
	return dl, nil
}

// ParseEnvelope парсит Envelope из сообщения Kafka.
func ParseEnvelope(message *sarama.ConsumerMessage) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return env, nil
}

func headerValue(message *sarama.ConsumerMessage, key string) (string, bool) {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value), true
		}
	}
	return "", false
}
