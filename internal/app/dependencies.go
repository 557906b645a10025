package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/audit"
	"github.com/vladislavdragonenkov/pedidos/internal/composer"
	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
	"github.com/vladislavdragonenkov/pedidos/internal/reception"
	"github.com/vladislavdragonenkov/pedidos/internal/storage/memory"
	"github.com/vladislavdragonenkov/pedidos/internal/storage/postgres"
)

// Dependencies собирает хранилища и сервисы движка заказов для одного процесса.
type Dependencies struct {
	Orders  domain.OrderStore
	Outbox  domain.OutboxRepository
	Catalog *memory.Catalog
	Logger  *log.Entry

	cfg         Config
	store       *postgres.Store
	metrics     *metrics.ProcurementMetrics
	lookupGroup *composer.FetchGroup
	reception   *reception.Service
	auditor     *audit.Auditor
}

// initRuntimeDependencies открывает хранилище, выбранное cfg.StorageDriver.
// Каталог остаётся in-memory: это внешний сервис, у процесса нет собственной копии.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Catalog:     memory.NewCatalog(),
		Logger:      logger,
		cfg:         cfg,
		metrics:     metrics.NewProcurementMetrics(),
		lookupGroup: composer.NewFetchGroup(),
	}

	switch strings.ToLower(cfg.StorageDriver) {
	case "", StorageDriverMemory:
		outbox := memory.NewOutboxRepository()
		deps.Outbox = outbox
		deps.Orders = memory.NewOrderStore(memory.WithOutbox(outbox))
		logger.Info("using in-memory order storage")

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		deps.store = store
		deps.Orders = postgres.NewOrderStore(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		logger.Info("using postgres order storage")

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	deps.reception = reception.NewService(deps.Orders, deps.Catalog,
		reception.WithLogger(logger.WithField("layer", "reception")),
		reception.WithMetrics(deps.metrics),
	)

	formatter, err := newFormatter(cfg)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.auditor = audit.New(formatter)
	return deps, nil
}

func newFormatter(cfg Config) (*audit.Formatter, error) {
	opts := []audit.FormatterOption{audit.WithCurrencySymbol(cfg.AuditCurrency)}
	if cfg.AuditLocale != "" {
		tag, err := cfg.auditLanguage()
		if err != nil {
			return nil, err
		}
		opts = append(opts, audit.WithLanguage(tag))
	}
	loc, err := cfg.auditLocation()
	if err != nil {
		return nil, err
	}
	opts = append(opts, audit.WithLocation(loc))
	return audit.NewFormatter(opts...), nil
}

// NewSession открывает сессию составления нового заказа.
func (d *Dependencies) NewSession() *composer.Session {
	return composer.New(d.Catalog, d.Orders, d.sessionOptions()...)
}

// EditSession открывает сессию редактирования сохранённого заказа.
func (d *Dependencies) EditSession(ctx context.Context, orderID int64) (*composer.Session, error) {
	return composer.Edit(ctx, d.Catalog, d.Orders, orderID, d.sessionOptions()...)
}

func (d *Dependencies) sessionOptions() []composer.Option {
	return []composer.Option{
		composer.WithLogger(d.Logger.WithField("layer", "composer")),
		composer.WithMetrics(d.metrics),
	}
}

// NewLookup создаёт поиск по каталогу для одного поля ввода.
// Одинаковые запросы разных сессий схлопываются общей группой запросов.
func (d *Dependencies) NewLookup() *composer.Lookup {
	return composer.NewLookup(d.Catalog,
		composer.WithQuietPeriod(d.cfg.LookupQuietPeriod),
		composer.WithFetchTimeout(d.cfg.LookupFetchTimeout),
		composer.WithSharedFetches(d.lookupGroup),
		composer.WithLookupLogger(d.Logger.WithField("layer", "lookup")),
		composer.WithLookupMetrics(d.metrics),
	)
}

// Reception возвращает сервис приёмки.
func (d *Dependencies) Reception() *reception.Service {
	return d.reception
}

// History возвращает историю изменений заказа в читаемом виде.
func (d *Dependencies) History(ctx context.Context, orderID int64) ([]audit.HistoryEntry, error) {
	records, err := d.Orders.ListModifications(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return d.auditor.History(records), nil
}

// Ping проверяет доступность хранилища.
func (d *Dependencies) Ping(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	return d.store.Ping(ctx)
}

// Close освобождает соединения хранилища.
func (d *Dependencies) Close() error {
	if d == nil || d.store == nil {
		return nil
	}
	return d.store.Close()
}
