package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// StoreOption настраивает in-memory хранилище заказов.
type StoreOption func(*orderStoreInMemory)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) StoreOption {
	return func(s *orderStoreInMemory) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOutbox включает запись событий в outbox при каждом сохранении.
func WithOutbox(outbox domain.OutboxRepository) StoreOption {
	return func(s *orderStoreInMemory) { s.outbox = outbox }
}

// orderStoreInMemory — in-memory реализация OrderStore для локальной разработки и тестов.
type orderStoreInMemory struct {
	mu          sync.RWMutex
	orders      map[int64]domain.Order
	nextOrderID int64
	nextDraftID int64

	modifications *modificationLog
	outbox        domain.OutboxRepository
	now           func() time.Time
}

// NewOrderStore возвращает in-memory хранилище заказов.
func NewOrderStore(opts ...StoreOption) domain.OrderStore {
	s := &orderStoreInMemory{
		orders:        make(map[int64]domain.Order),
		modifications: newModificationLog(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder сохраняет новый заказ в статусе pending и выдаёт постоянные ID черновикам.
func (s *orderStoreInMemory) CreateOrder(ctx context.Context, payload domain.OrderPayload, actor domain.Actor) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if err := payload.Validate(); err != nil {
		return domain.Order{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.nextOrderID++
	order := domain.Order{
		ID:        s.nextOrderID,
		Status:    domain.OrderStatusPending,
		CreatedBy: actor,
		CreatedAt: now,
		Version:   1,
	}
	if err := order.ApplyPayload(payload, s.nextDraft, uuid.NewString); err != nil {
		return domain.Order{}, err
	}
	order.UpdatedAt = now

	if err := s.enqueue(ctx, domain.EventOrderCreated, order, actor, ""); err != nil {
		s.nextOrderID--
		return domain.Order{}, err
	}
	s.orders[order.ID] = order
	return order.Clone(), nil
}

// GetOrder возвращает копию заказа или ErrOrderNotFound.
func (s *orderStoreInMemory) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	return order.Clone(), nil
}

// UpdateOrder перезаписывает заказ в статусе pending, проверяя версию (optimistic locking),
// и добавляет запись в журнал изменений.
func (s *orderStoreInMemory) UpdateOrder(ctx context.Context, id int64, payload domain.OrderPayload, meta domain.EditMeta) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if err := payload.Validate(); err != nil {
		return domain.Order{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	if current.Status != domain.OrderStatusPending {
		return domain.Order{}, fmt.Errorf("edit order %d in status %s: %w", id, current.Status, domain.ErrInvalidState)
	}
	if meta.ExpectedVersion != 0 && meta.ExpectedVersion != current.Version {
		return domain.Order{}, domain.ErrOrderVersionConflict
	}

	next := current.Clone()
	if err := next.ApplyPayload(payload, s.nextDraft, uuid.NewString); err != nil {
		return domain.Order{}, err
	}
	next.UpdatedAt = s.now()
	next.Version++

	before, after := current.Snapshot().Changed(next.Snapshot())
	if err := s.enqueue(ctx, domain.EventOrderUpdated, next, meta.Actor, meta.Reason); err != nil {
		return domain.Order{}, err
	}
	s.modifications.Append(domain.ModificationRecord{
		OrderID: id,
		At:      next.UpdatedAt,
		Actor:   meta.Actor,
		Reason:  strings.TrimSpace(meta.Reason),
		Before:  before,
		After:   after,
	})
	s.orders[id] = next
	return next.Clone(), nil
}

// SubmitReception переводит заказ в received. Повторная приёмка даёт ErrInvalidState.
func (s *orderStoreInMemory) SubmitReception(ctx context.Context, sub domain.ReceptionSubmission) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[sub.OrderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %d: %w", sub.OrderID, domain.ErrOrderNotFound)
	}
	if sub.ReceivedAt.IsZero() {
		sub.ReceivedAt = s.now()
	}
	next, err := domain.ApplyReception(current, sub, s.nextDraft)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.enqueue(ctx, domain.EventOrderReceived, next, sub.Actor, sub.Notes); err != nil {
		return domain.Order{}, err
	}
	before, after := current.Snapshot().Changed(next.Snapshot())
	s.modifications.Append(domain.ModificationRecord{
		OrderID: sub.OrderID,
		At:      next.UpdatedAt,
		Actor:   sub.Actor,
		Reason:  strings.TrimSpace(sub.Notes),
		Before:  before,
		After:   after,
	})
	s.orders[sub.OrderID] = next
	return next.Clone(), nil
}

// ListModifications возвращает журнал изменений заказа в хронологическом порядке.
func (s *orderStoreInMemory) ListModifications(ctx context.Context, id int64) ([]domain.ModificationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	_, ok := s.orders[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	return s.modifications.List(id), nil
}

// nextDraft выдаёт следующий постоянный ID черновика. Вызывается под мьютексом.
func (s *orderStoreInMemory) nextDraft() (int64, error) {
	s.nextDraftID++
	return s.nextDraftID, nil
}

func (s *orderStoreInMemory) enqueue(ctx context.Context, eventType string, order domain.Order, actor domain.Actor, reason string) error {
	if s.outbox == nil {
		return nil
	}
	msgs, err := domain.OrderEvents(eventType, order, actor, reason)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue %s: %w", msg.EventType, err)
		}
	}
	return nil
}

var _ domain.OrderStore = (*orderStoreInMemory)(nil)
