package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultRetention        = 72 * time.Hour
)

var (
	outboxCleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pedidos_outbox_cleanup_runs_total",
		Help: "Outbox cleanup runs grouped by result.",
	}, []string{"result"})
	outboxCleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pedidos_outbox_cleanup_deleted_total",
		Help: "Published outbox records removed after the retention window.",
	})
	outboxCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pedidos_outbox_cleanup_last_deleted",
		Help: "Records removed during the last cleanup run.",
	})
)

// CleanerOptions задаёт параметры очистки опубликованных сообщений.
type CleanerOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	Retention time.Duration
	BatchSize int
	Clock     func() time.Time
}

// CleanerOption настраивает Cleaner.
type CleanerOption func(*CleanerOptions)

func WithCleanerLogger(logger *log.Entry) CleanerOption {
	return func(opts *CleanerOptions) {
		opts.Logger = logger
	}
}

func WithCleanupInterval(interval time.Duration) CleanerOption {
	return func(opts *CleanerOptions) {
		opts.Interval = interval
	}
}

// WithRetention задаёт, сколько хранить отправленные сообщения.
func WithRetention(retention time.Duration) CleanerOption {
	return func(opts *CleanerOptions) {
		opts.Retention = retention
	}
}

func WithCleanupBatchSize(batchSize int) CleanerOption {
	return func(opts *CleanerOptions) {
		opts.BatchSize = batchSize
	}
}

func WithCleanerClock(clock func() time.Time) CleanerOption {
	return func(opts *CleanerOptions) {
		opts.Clock = clock
	}
}

// Cleaner периодически удаляет опубликованные сообщения старше срока хранения.
// Pending и failed сообщения не трогает.
type Cleaner struct {
	repo      domain.OutboxPruner
	logger    *log.Entry
	interval  time.Duration
	retention time.Duration
	batchSize int
	now       func() time.Time
}

func NewCleaner(repo domain.OutboxPruner, options ...CleanerOption) *Cleaner {
	opts := CleanerOptions{
		Interval:  defaultCleanupInterval,
		Retention: defaultRetention,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-cleaner")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Cleaner{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		retention: opts.Retention,
		batchSize: opts.BatchSize,
		now:       clock,
	}
}

// Run чистит outbox сразу и затем каждые interval до отмены ctx.
func (c *Cleaner) Run(ctx context.Context) {
	if c.repo == nil {
		c.logger.Warn("outbox cleaner is disabled: repository does not support pruning")
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) {
	deleted, err := c.Prune(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		outboxCleanupRuns.WithLabelValues("error").Inc()
		c.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}

	outboxCleanupRuns.WithLabelValues("ok").Inc()
	outboxCleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		c.logger.WithField("deleted", deleted).Info("outbox cleanup completed")
	}
}

// Prune удаляет порциями batchSize все отправленные сообщения, отмеченные раньше now-retention.
func (c *Cleaner) Prune(ctx context.Context) (int, error) {
	before := c.now().Add(-c.retention)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := c.repo.DeleteSentBefore(ctx, before, c.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted > 0 {
			outboxCleanupDeleted.Add(float64(deleted))
		}
		if deleted < c.batchSize {
			return total, nil
		}
	}
}
