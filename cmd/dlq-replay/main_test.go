package main

import (
	"reflect"
	"testing"

	"github.com/vladislavdragonenkov/pedidos/internal/messaging/kafka"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("PEDIDOS_KAFKA_BROKERS", "")

	cfg, err := parseConfig([]string{"-brokers", "k1:9092, k2:9092,", "-execute"})
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.brokers, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("unexpected brokers %v", cfg.brokers)
	}
	if !cfg.execute || !cfg.fromOldest {
		t.Fatalf("unexpected flags %+v", cfg)
	}
	if cfg.dlqTopic != kafka.TopicDeadLetterQueue || cfg.router != kafka.DefaultTopicRouter() {
		t.Fatalf("unexpected topics %+v", cfg)
	}
}

func TestParseConfig_BrokersFromEnv(t *testing.T) {
	t.Setenv("PEDIDOS_KAFKA_BROKERS", "env-broker:9092")

	cfg, err := parseConfig([]string{"-dlq-topic", "custom.dlq"})
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if len(cfg.brokers) != 1 || cfg.brokers[0] != "env-broker:9092" {
		t.Fatalf("unexpected brokers %v", cfg.brokers)
	}
	if cfg.execute {
		t.Fatal("dry run must be the default")
	}
	if cfg.dlqTopic != "custom.dlq" {
		t.Fatalf("unexpected dlq topic %s", cfg.dlqTopic)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	t.Setenv("PEDIDOS_KAFKA_BROKERS", "")

	tests := [][]string{
		nil,
		{"-brokers", " , "},
		{"-brokers", "k:9092", "-group", " "},
		{"-unknown"},
	}
	for _, args := range tests {
		if _, err := parseConfig(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
