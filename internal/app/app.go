package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pedidos/internal/health"
	"github.com/vladislavdragonenkov/pedidos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pedidos/internal/service/outbox"
	"github.com/vladislavdragonenkov/pedidos/internal/version"
)

const (
	shutdownTimeout = 5 * time.Second
	opsRateLimit    = 120
)

// Run запускает outbox relay: воркер переносит события из outbox в Kafka,
// HTTP-сервер отдаёт /metrics и health probes. Блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "outbox-relay")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	producer, err := initKafkaProducer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeKafka(producer, logger)

	worker := newOutboxWorker(cfg, deps.Outbox, producer, logger)
	cleaner := newOutboxCleaner(cfg, deps.Outbox, logger)

	healthHandler := healthcheck.NewHandler(version.Current())
	healthHandler.RegisterChecker("storage", healthcheck.NewFuncChecker("storage", deps.Ping))
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.Outbox, cfg.OutboxMaxPending, cfg.OutboxMaxAge))

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           NewOpsRouter(healthHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.MetricsAddr).Info("ops server listening: /metrics /healthz /readyz /livez")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var background sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(ctx)
	background.Add(2)
	go func() {
		defer background.Done()
		worker.Run(workerCtx)
	}()
	go func() {
		defer background.Done()
		cleaner.Run(workerCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case err := <-errCh:
		logger.WithError(err).Error("ops server failed")
		runErr = err
	}

	stopWorkers()
	background.Wait()
	shutdownHTTP(srv, logger)
	return runErr
}

// NewOpsRouter собирает служебные HTTP-маршруты процесса.
func NewOpsRouter(healthHandler *healthcheck.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(opsRateLimit, time.Minute))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Method(http.MethodGet, "/healthz", healthHandler)
	r.Get("/readyz", healthHandler.ReadinessHandler)
	r.Get("/livez", healthcheck.LivenessHandler)
	return r
}

func newOutboxWorker(cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	opts := []outbox.Option{
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}

	if producer == nil {
		logger.Warn("kafka is not configured, outbox events are only logged")
		return outbox.NewWorker(repo, logPublisher{logger: logger.WithField("layer", "log-publisher")}, opts...)
	}

	router := kafka.TopicRouter{Orders: cfg.KafkaOrderTopic, Catalog: cfg.KafkaCatalogTopic}
	opts = append(opts, outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, router, cfg.KafkaDLQTopic)))
	return outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, router), opts...)
}

// newOutboxCleaner возвращает очистку отправленных сообщений. Хранилище без
// поддержки удаления даёт выключенный Cleaner.
func newOutboxCleaner(cfg Config, repo domain.OutboxRepository, logger *log.Entry) *outbox.Cleaner {
	pruner, _ := repo.(domain.OutboxPruner)
	return outbox.NewCleaner(pruner,
		outbox.WithCleanerLogger(logger.WithField("layer", "outbox-cleaner")),
		outbox.WithRetention(cfg.OutboxRetention),
		outbox.WithCleanupInterval(cfg.OutboxCleanupInterval),
	)
}

// logPublisher пишет события в лог вместо брокера.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"aggregate_id": msg.AggregateID,
	}).Info("outbox event")
	return nil
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("ops server shutdown with error")
	}
}
