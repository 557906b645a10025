package reception

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/drafts"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
)

// Service выполняет приёмку целиком: загрузка → сверка → продвижение выбранных черновиков →
// одна отправка в хранилище. Любая ошибка возвращается до изменения заказа.
type Service struct {
	orders     domain.OrderStore
	promotions domain.PromotionService
	logger     *log.Entry
	metrics    *metrics.ProcurementMetrics
	now        func() time.Time

	mu sync.Mutex
	// registries держит реестр продвижений до успешной отправки,
	// чтобы повтор после сбоя не регистрировал черновики заново.
	registries map[int64]*drafts.Registry
}

// Option настраивает сервис приёмки.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает метрики приёмки и продвижений.
func WithMetrics(m *metrics.ProcurementMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис приёмки. Без WithMetrics метрики не пишутся.
func NewService(orders domain.OrderStore, promotions domain.PromotionService, opts ...Option) *Service {
	s := &Service{
		orders:     orders,
		promotions: promotions,
		logger:     log.New().WithField("component", "reception"),
		now:        func() time.Time { return time.Now().UTC() },
		registries: make(map[int64]*drafts.Registry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview считает приёмку без побочных эффектов.
func (s *Service) Preview(ctx context.Context, orderID int64, in Input, actor domain.Actor) (Result, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Result{}, domain.WrapRemote("getOrder", err)
	}
	return Reconcile(order, in, actor)
}

// Receive подтверждает приёмку заказа.
func (s *Service) Receive(ctx context.Context, orderID int64, in Input, actor domain.Actor) (order domain.Order, res Result, err error) {
	start := time.Now()
	s.metrics.RecordReceptionStarted()
	defer func() {
		s.metrics.RecordReceptionFinished(err, time.Since(start))
	}()

	logger := s.logger.WithFields(log.Fields{"order_id": orderID, "actor_id": actor.ID})

	current, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		err = domain.WrapRemote("getOrder", err)
		s.releaseIfFinal(orderID, err)
		logger.WithError(err).Warn("order not loaded for reception")
		return domain.Order{}, Result{}, err
	}

	res, err = Reconcile(current, in, actor)
	if err != nil {
		s.releaseIfFinal(orderID, err)
		logger.WithError(err).Debug("reception rejected")
		return domain.Order{}, Result{}, err
	}

	registry := s.registryFor(orderID)
	toPromote := res.ToPromote()
	promoted := make([]domain.PromotionResult, 0, len(toPromote))
	for _, item := range toPromote {
		p, perr := registry.Promote(ctx, item)
		if perr != nil {
			logger.WithError(perr).Warn("draft promotion failed, reception not submitted")
			return domain.Order{}, Result{}, perr
		}
		promoted = append(promoted, p)
	}

	sub := res.Submission(promoted, s.now())
	saved, err := s.orders.SubmitReception(ctx, sub)
	if err != nil {
		err = domain.WrapRemote("submitReception", err)
		s.releaseIfFinal(orderID, err)
		logger.WithError(err).Warn("reception submission failed")
		return domain.Order{}, Result{}, err
	}

	s.releaseRegistry(orderID)
	logger.WithFields(log.Fields{
		"lines":      len(sub.Lines),
		"new_items":  len(sub.NewItems),
		"promotions": len(sub.Promotions),
		"total":      sub.Total.StringFixed(domain.MoneyPlaces),
	}).Info("order received")
	return saved, res, nil
}

func (s *Service) registryFor(orderID int64) *drafts.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	registry, ok := s.registries[orderID]
	if !ok {
		registry = drafts.NewRegistry(s.promotions,
			drafts.WithLogger(s.logger.WithField("order_id", orderID)),
			drafts.WithMetrics(s.metrics),
		)
		s.registries[orderID] = registry
	}
	return registry
}

func (s *Service) releaseRegistry(orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registries, orderID)
}

// releaseIfFinal сбрасывает реестр, когда повтор приёмки уже невозможен:
// заказа нет или он вышел из pending.
func (s *Service) releaseIfFinal(orderID int64, err error) {
	if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrOrderNotFound) {
		s.releaseRegistry(orderID)
	}
}
