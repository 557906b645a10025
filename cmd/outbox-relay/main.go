package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/app"
	"github.com/vladislavdragonenkov/pedidos/internal/version"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := app.ConfigureLogging(cfg); err != nil {
		log.WithError(err).Fatal("invalid logging configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"build":          version.Current().String(),
		"storage_driver": cfg.StorageDriver,
		"metrics_addr":   cfg.MetricsAddr,
		"kafka":          cfg.KafkaEnabled(),
	}).Info("starting outbox relay")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("outbox relay stopped with error")
	}
	log.Info("outbox relay stopped")
}
