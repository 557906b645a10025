package app

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pedidos/internal/version"
)

// initKafkaProducer создаёт producer, если брокеры заданы. Без брокеров возвращает nil, nil.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}

	brokers := make([]string, 0, len(cfg.KafkaBrokers))
	for _, b := range cfg.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	producer, err := kafka.NewProducer(brokers, version.ClientID(cfg.KafkaClientID), logger.WithField("layer", "kafka"))
	if err != nil {
		return nil, fmt.Errorf("init kafka producer: %w", err)
	}
	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
