package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

func headerMap(msg *sarama.ProducerMessage) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[string(h.Key)] = string(h.Value)
	}
	return out
}

func TestOutboxPublisher_PublishRoutesByEventType(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newTestProducer(t)
	publisher := NewOutboxPublisher(producer, DefaultTopicRouter())

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return fmt.Errorf("order event went to %s", msg.Topic)
		}
		value, _ := msg.Value.Encode()
		var env Envelope
		if err := json.Unmarshal(value, &env); err != nil {
			return err
		}
		if env.ID != "outbox-1" || string(env.Payload) != `{"order_id":7}` {
			return fmt.Errorf("unexpected envelope %+v", env)
		}
		if headerMap(msg)[HeaderEventType] != domain.EventOrderCreated {
			return errors.New("missing event type header")
		}
		return nil
	})
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicCatalogEvents {
			return fmt.Errorf("promotion went to %s", msg.Topic)
		}
		return nil
	})

	ctx := context.Background()
	if err := publisher.Publish(ctx, domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "7",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":7}`),
	}); err != nil {
		t.Fatalf("publish order event failed: %v", err)
	}
	if err := publisher.Publish(ctx, domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: domain.AggregateDraftEntry,
		AggregateID:   "501",
		EventType:     domain.EventDraftPromoted,
		Payload:       []byte(`{}`),
	}); err != nil {
		t.Fatalf("publish promotion failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newTestProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(producer, DefaultTopicRouter())
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3", Payload: []byte(`{}`)}); err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, DefaultTopicRouter())
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-4"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestDLQPublisher_CarriesFailureHeaders(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newTestProducer(t)
	publisher := NewDLQPublisher(producer, DefaultTopicRouter(), "")

	msg := domain.OutboxMessage{
		ID:            "outbox-5",
		AggregateType: domain.AggregateDraftEntry,
		AggregateID:   "501",
		EventType:     domain.EventDraftPromoted,
		Payload:       []byte(`{}`),
	}
	dl := domain.NewDeadLetter(msg, 3, errors.New("broker down"), time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	payload, err := json.Marshal(dl)
	if err != nil {
		t.Fatalf("marshal dead letter: %v", err)
	}

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Topic != TopicDeadLetterQueue {
			return fmt.Errorf("unexpected topic %s", m.Topic)
		}
		h := headerMap(m)
		if h[HeaderOriginalTopic] != TopicCatalogEvents || h[HeaderRetryCount] != "3" || h[HeaderErrorMessage] != "broker down" {
			return fmt.Errorf("unexpected headers %v", h)
		}
		if h[HeaderFailedAt] != "2024-03-15T10:00:00Z" {
			return fmt.Errorf("unexpected failed-at %q", h[HeaderFailedAt])
		}
		return nil
	})

	msg.Payload = payload
	if err := publisher.Publish(context.Background(), msg); err != nil {
		t.Fatalf("dlq publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
