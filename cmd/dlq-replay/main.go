package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pedidos/internal/version"
)

type config struct {
	brokers    []string
	groupID    string
	dlqTopic   string
	router     kafka.TopicRouter
	execute    bool
	fromOldest bool
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("dlq replay failed")
	}
}

func parseConfig(args []string) (config, error) {
	var (
		cfg     config
		brokers string
	)
	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", os.Getenv("PEDIDOS_KAFKA_BROKERS"), "comma separated kafka brokers")
	fs.StringVar(&cfg.groupID, "group", "pedidos-dlq-replay", "consumer group id")
	fs.StringVar(&cfg.dlqTopic, "dlq-topic", kafka.TopicDeadLetterQueue, "dead letter topic to read")
	fs.StringVar(&cfg.router.Orders, "order-topic", kafka.TopicOrderEvents, "topic for order events")
	fs.StringVar(&cfg.router.Catalog, "catalog-topic", kafka.TopicCatalogEvents, "topic for draft promotions")
	fs.BoolVar(&cfg.execute, "execute", false, "republish messages (default is a dry run)")
	fs.BoolVar(&cfg.fromOldest, "from-oldest", true, "start a new consumer group from the oldest offset")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.brokers = append(cfg.brokers, b)
		}
	}
	if len(cfg.brokers) == 0 {
		return config{}, errors.New("-brokers (or PEDIDOS_KAFKA_BROKERS) is required")
	}
	if strings.TrimSpace(cfg.groupID) == "" {
		return config{}, errors.New("-group must not be empty")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithFields(log.Fields{
		"component": "dlq-replay",
		"dlq_topic": cfg.dlqTopic,
		"execute":   cfg.execute,
	})

	producer, err := kafka.NewProducer(cfg.brokers, version.ClientID("dlq-replay"), logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	replayer := kafka.NewReplayer(producer, cfg.router, !cfg.execute, logger)
	// Одна попытка: неудачная переотправка оставляет сообщение в DLQ непомеченным.
	consumer, err := kafka.NewConsumer(cfg.brokers, cfg.groupID, []string{cfg.dlqTopic}, replayer.Handle, kafka.ConsumerOptions{
		Logger:     logger,
		MaxRetries: 1,
		FromOldest: cfg.fromOldest,
	})
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	stopErr := consumer.Stop()

	replayed, skipped := replayer.Stats()
	logger.WithFields(log.Fields{"replayed": replayed, "skipped": skipped}).Info("dlq replay finished")
	if stopErr != nil {
		return stopErr
	}
	return ctx.Err()
}
