package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

type mockConsumerGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeFn   func() error
}

func (m *mockConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (m *mockConsumerGroup) Errors() <-chan error {
	return m.errorsCh
}

func (m *mockConsumerGroup) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	if m.errorsCh != nil {
		close(m.errorsCh)
	}
	return nil
}

func (m *mockConsumerGroup) Pause(map[string][]int32)  {}
func (m *mockConsumerGroup) Resume(map[string][]int32) {}
func (m *mockConsumerGroup) PauseAll()                 {}
func (m *mockConsumerGroup) ResumeAll()                {}

type mockSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (m *mockSession) Claims() map[string][]int32               { return nil }
func (m *mockSession) MemberID() string                         { return "member" }
func (m *mockSession) GenerationID() int32                      { return 1 }
func (m *mockSession) MarkOffset(string, int32, int64, string)  {}
func (m *mockSession) Commit()                                  {}
func (m *mockSession) ResetOffset(string, int32, int64, string) {}
func (m *mockSession) Context() context.Context                 { return m.ctx }
func (m *mockSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	m.marked = append(m.marked, msg)
}

type mockClaim struct {
	topic     string
	partition int32
	messages  chan *sarama.ConsumerMessage
}

func (m *mockClaim) Topic() string                            { return m.topic }
func (m *mockClaim) Partition() int32                         { return m.partition }
func (m *mockClaim) InitialOffset() int64                     { return 0 }
func (m *mockClaim) HighWaterMarkOffset() int64               { return 0 }
func (m *mockClaim) Messages() <-chan *sarama.ConsumerMessage { return m.messages }

func noopHandler(context.Context, *sarama.ConsumerMessage) error { return nil }

func TestNewConsumerErrors(t *testing.T) {
	if _, err := NewConsumer([]string{"invalid-broker:9092"}, "group", []string{TopicOrderEvents}, noopHandler, ConsumerOptions{}); err == nil {
		t.Fatal("expected new consumer error")
	}
}

func TestNewConsumerDefaults(t *testing.T) {
	consumer := newConsumer(&mockConsumerGroup{}, []string{TopicOrderEvents}, noopHandler, ConsumerOptions{RetryDelay: -time.Second})
	if consumer.maxRetries != defaultConsumerMaxRetries {
		t.Fatalf("expected default max retries, got %d", consumer.maxRetries)
	}
	if consumer.dlqTopic != TopicDeadLetterQueue {
		t.Fatalf("expected default dlq topic, got %s", consumer.dlqTopic)
	}
	if consumer.retryDelay != 0 {
		t.Fatalf("negative retry delay must be clamped, got %s", consumer.retryDelay)
	}
	if consumer.dlqProducer != nil {
		t.Fatal("dlq must be disabled without producer")
	}
}

func TestConsumerStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumeCalls := 0
	errorsCh := make(chan error, 1)
	group := &mockConsumerGroup{
		errorsCh: errorsCh,
		consumeFn: func(_ context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
			consumeCalls++
			cancel()
			return nil
		},
		closeFn: func() error {
			close(errorsCh)
			return nil
		},
	}

	consumer := newConsumer(group, []string{TopicOrderEvents}, noopHandler, ConsumerOptions{
		Logger:     log.WithField("test", "consumer"),
		MaxRetries: 2,
	})

	errorsCh <- errors.New("background error")
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := consumer.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if consumeCalls == 0 {
		t.Fatal("expected consume call")
	}
}

func TestConsumerStopError(t *testing.T) {
	errorsCh := make(chan error)
	group := &mockConsumerGroup{errorsCh: errorsCh, closeFn: func() error {
		close(errorsCh)
		return errors.New("close failed")
	}}
	consumer := newConsumer(group, nil, noopHandler, ConsumerOptions{Logger: log.WithField("test", "stop")})
	if err := consumer.Stop(); err == nil {
		t.Fatal("expected stop error")
	}
}

func TestConsumerSetupCleanup(t *testing.T) {
	consumer := &Consumer{}
	if err := consumer.Setup(nil); err != nil {
		t.Fatalf("setup should return nil: %v", err)
	}
	if err := consumer.Cleanup(nil); err != nil {
		t.Fatalf("cleanup should return nil: %v", err)
	}
}

func TestConsumeClaim(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []int64
	consumer := newConsumer(&mockConsumerGroup{}, nil, func(_ context.Context, msg *sarama.ConsumerMessage) error {
		seen = append(seen, msg.Offset)
		return nil
	}, ConsumerOptions{Logger: log.WithField("test", "claim")})

	session := &mockSession{ctx: ctx}
	claim := &mockClaim{topic: TopicOrderEvents, partition: 0, messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Topic: TopicOrderEvents, Offset: 1, Key: []byte("pedido:1"), Value: []byte("{}")}
	claim.messages <- &sarama.ConsumerMessage{Topic: TopicOrderEvents, Offset: 2, Key: []byte("pedido:1"), Value: []byte("{}")}
	close(claim.messages)

	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim failed: %v", err)
	}
	if len(session.marked) != 2 {
		t.Fatalf("expected two marked messages, got %d", len(session.marked))
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("messages must be handled in partition order, got %v", seen)
	}
}

func TestConsumeClaimFailedHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := newConsumer(&mockConsumerGroup{}, nil, func(context.Context, *sarama.ConsumerMessage) error {
		return errors.New("failed")
	}, ConsumerOptions{Logger: log.WithField("test", "claim-fail"), MaxRetries: 1})

	session := &mockSession{ctx: ctx}
	claim := &mockClaim{topic: TopicOrderEvents, partition: 0, messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Topic: TopicOrderEvents, Offset: 1, Key: []byte("k"), Value: []byte("v")}
	close(claim.messages)

	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim failed: %v", err)
	}
	if len(session.marked) != 0 {
		t.Fatalf("failed message should not be marked, got %d", len(session.marked))
	}
}

func retryMessage(count string) *sarama.ConsumerMessage {
	msg := &sarama.ConsumerMessage{Topic: TopicOrderEvents, Key: []byte("pedido:7"), Value: []byte("{}")}
	if count != "" {
		msg.Headers = []*sarama.RecordHeader{
			{Key: []byte(HeaderRetryCount), Value: []byte(count)},
			{Key: []byte(HeaderEventType), Value: []byte("order.updated")},
		}
	}
	return msg
}

func TestHandleMessageWithRetry(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		consumer := newConsumer(&mockConsumerGroup{}, nil, noopHandler, ConsumerOptions{
			Logger:     log.WithField("test", "retry-success"),
			MaxRetries: 2,
		})
		if err := consumer.handleMessageWithRetry(context.Background(), retryMessage("")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("succeeds on second attempt", func(t *testing.T) {
		attempts := 0
		consumer := newConsumer(&mockConsumerGroup{}, nil, func(context.Context, *sarama.ConsumerMessage) error {
			attempts++
			if attempts < 2 {
				return errors.New("temporary")
			}
			return nil
		}, ConsumerOptions{Logger: log.WithField("test", "retry-second"), MaxRetries: 3, RetryDelay: time.Millisecond})
		if err := consumer.handleMessageWithRetry(context.Background(), retryMessage("")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Fatalf("expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("retry below limit", func(t *testing.T) {
		attempts := 0
		consumer := newConsumer(&mockConsumerGroup{}, nil, func(context.Context, *sarama.ConsumerMessage) error {
			attempts++
			return errors.New("temporary")
		}, ConsumerOptions{Logger: log.WithField("test", "retry"), MaxRetries: 3})
		if err := consumer.handleMessageWithRetry(context.Background(), retryMessage("1")); err == nil {
			t.Fatal("expected retry error")
		}
		if attempts != 2 {
			t.Fatalf("expected 2 in-process attempts, got %d", attempts)
		}
	})

	t.Run("exhausted header still gets one attempt", func(t *testing.T) {
		attempts := 0
		consumer := newConsumer(&mockConsumerGroup{}, nil, func(context.Context, *sarama.ConsumerMessage) error {
			attempts++
			return errors.New("permanent")
		}, ConsumerOptions{Logger: log.WithField("test", "max-no-dlq"), MaxRetries: 3})
		if err := consumer.handleMessageWithRetry(context.Background(), retryMessage("3")); err == nil {
			t.Fatal("expected error when dlq is absent")
		}
		if attempts != 1 {
			t.Fatalf("expected a single attempt, got %d", attempts)
		}
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		consumer := newConsumer(&mockConsumerGroup{}, nil, func(context.Context, *sarama.ConsumerMessage) error {
			cancel()
			return errors.New("temporary")
		}, ConsumerOptions{Logger: log.WithField("test", "retry-cancel"), MaxRetries: 3, RetryDelay: time.Minute})
		if err := consumer.handleMessageWithRetry(ctx, retryMessage("")); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("max retries with dlq success", func(t *testing.T) {
		mockProducer := mocks.NewSyncProducer(t, nil)
		mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != "custom.dlq" {
				return fmt.Errorf("unexpected topic %s", msg.Topic)
			}
			h := headerMap(msg)
			if h[HeaderRetryCount] != "4" || h[HeaderOriginalTopic] != TopicOrderEvents || h[HeaderErrorMessage] != "permanent" {
				return fmt.Errorf("unexpected headers %v", h)
			}
			if h[HeaderEventType] != "order.updated" {
				return fmt.Errorf("event type header was not carried: %v", h)
			}
			return nil
		})
		consumer := newConsumer(&mockConsumerGroup{}, nil, func(context.Context, *sarama.ConsumerMessage) error {
			return errors.New("permanent")
		}, ConsumerOptions{
			Logger:      log.WithField("test", "max-dlq"),
			DLQProducer: NewProducerFrom(mockProducer, log.WithField("test", "dlq")),
			DLQTopic:    "custom.dlq",
			MaxRetries:  3,
		})
		if err := consumer.handleMessageWithRetry(context.Background(), retryMessage("3")); err != nil {
			t.Fatalf("unexpected error after dlq publish: %v", err)
		}
		if err := mockProducer.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("max retries with dlq failure", func(t *testing.T) {
		mockProducer := mocks.NewSyncProducer(t, nil)
		mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		consumer := newConsumer(&mockConsumerGroup{}, nil, func(context.Context, *sarama.ConsumerMessage) error {
			return errors.New("permanent")
		}, ConsumerOptions{
			Logger:      log.WithField("test", "max-dlq-fail"),
			DLQProducer: NewProducerFrom(mockProducer, log.WithField("test", "dlq")),
			MaxRetries:  3,
		})
		if err := consumer.handleMessageWithRetry(context.Background(), retryMessage("3")); err == nil {
			t.Fatal("expected dlq failure")
		}
		if err := mockProducer.Close(); err != nil {
			t.Fatal(err)
		}
	})
}

func TestGetRetryCount(t *testing.T) {
	consumer := &Consumer{}

	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "valid", value: "5", want: 5},
		{name: "invalid", value: "bad", want: 0},
		{name: "negative", value: "-2", want: 0},
		{name: "absent", value: "", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := consumer.getRetryCount(retryMessage(tt.value)); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestSendToDLQ(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		value, _ := msg.Value.Encode()
		if string(value) != "v" {
			return fmt.Errorf("dlq must carry the original value, got %q", value)
		}
		return nil
	})

	consumer := newConsumer(&mockConsumerGroup{}, nil, noopHandler, ConsumerOptions{
		Logger:      log.WithField("test", "consumer-send-dlq"),
		DLQProducer: NewProducerFrom(mockProducer, log.WithField("test", "send-dlq")),
	})

	msg := &sarama.ConsumerMessage{Topic: TopicOrderEvents, Partition: 1, Offset: 42, Key: []byte("k"), Value: []byte("v")}
	if err := consumer.sendToDLQ(context.Background(), msg, errors.New("boom"), 3); err != nil {
		t.Fatalf("sendToDLQ failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestConsumeClaimStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := newConsumer(&mockConsumerGroup{}, nil, noopHandler, ConsumerOptions{
		Logger:     log.WithField("test", "claim-stop"),
		MaxRetries: 1,
	})
	session := &mockSession{ctx: ctx}
	claim := &mockClaim{topic: TopicOrderEvents, partition: 0, messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = consumer.ConsumeClaim(session, claim)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not stop after context cancellation")
	}
}
