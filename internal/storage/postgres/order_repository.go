package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

const orderColumns = `
	id, supplier_id, supplier_name, discount_pct, shipping_cost, expected_delivery,
	status, total, lines, draft_variants, draft_products, reception,
	created_by_id, created_by_name, version, created_at, updated_at, received_at`

// OrderStoreOption настраивает PostgreSQL-хранилище заказов.
type OrderStoreOption func(*orderStore)

// WithOrderClock подменяет источник времени.
func WithOrderClock(now func() time.Time) OrderStoreOption {
	return func(s *orderStore) {
		if now != nil {
			s.now = now
		}
	}
}

// orderStore хранит заказ одной строкой: коллекции позиций и запись приёмки лежат в JSONB.
// События заказа пишутся в outbox_messages в той же транзакции.
type orderStore struct {
	store *Store
	now   func() time.Time
}

// NewOrderStore создаёт PostgreSQL-реализацию OrderStore.
func NewOrderStore(store *Store, opts ...OrderStoreOption) domain.OrderStore {
	s := &orderStore{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *orderStore) CreateOrder(ctx context.Context, payload domain.OrderPayload, actor domain.Actor) (domain.Order, error) {
	if err := payload.Validate(); err != nil {
		return domain.Order{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var created domain.Order
	err := s.store.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		order := domain.Order{
			Status:    domain.OrderStatusPending,
			CreatedBy: actor,
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		}
		if err := order.ApplyPayload(payload, draftIDSequence(ctx, tx), uuid.NewString); err != nil {
			return err
		}

		row, err := encodeOrder(order)
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (
				supplier_id, supplier_name, discount_pct, shipping_cost, expected_delivery,
				status, total, lines, draft_variants, draft_products, reception,
				created_by_id, created_by_name, version, created_at, updated_at, received_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			RETURNING id
		`,
			order.Supplier.ID, order.Supplier.Name, order.DiscountPct, order.ShippingCost, row.expectedDelivery,
			string(order.Status), order.Total, row.lines, row.draftVariants, row.draftProducts, row.reception,
			order.CreatedBy.ID, order.CreatedBy.Name, order.Version, order.CreatedAt, order.UpdatedAt, row.receivedAt,
		).Scan(&order.ID); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := enqueueOrderEvents(ctx, tx, domain.EventOrderCreated, order, actor, "", now); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return created, nil
}

func (s *orderStore) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(s.store.DB().QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, orderLookupError(id, err)
	}
	return order, nil
}

func (s *orderStore) UpdateOrder(ctx context.Context, id int64, payload domain.OrderPayload, meta domain.EditMeta) (domain.Order, error) {
	if err := payload.Validate(); err != nil {
		return domain.Order{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var updated domain.Order
	err := s.store.inTx(ctx, func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusPending {
			return fmt.Errorf("edit order %d in status %s: %w", id, current.Status, domain.ErrInvalidState)
		}
		if meta.ExpectedVersion != 0 && meta.ExpectedVersion != current.Version {
			return domain.ErrOrderVersionConflict
		}

		next := current.Clone()
		if err := next.ApplyPayload(payload, draftIDSequence(ctx, tx), uuid.NewString); err != nil {
			return err
		}
		next.UpdatedAt = s.now()
		next.Version++

		if err := saveOrder(ctx, tx, next, current.Version); err != nil {
			return err
		}

		before, after := current.Snapshot().Changed(next.Snapshot())
		if _, err := insertModification(ctx, tx, domain.ModificationRecord{
			OrderID: id,
			At:      next.UpdatedAt,
			Actor:   meta.Actor,
			Reason:  strings.TrimSpace(meta.Reason),
			Before:  before,
			After:   after,
		}); err != nil {
			return err
		}

		if err := enqueueOrderEvents(ctx, tx, domain.EventOrderUpdated, next, meta.Actor, meta.Reason, next.UpdatedAt); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func (s *orderStore) SubmitReception(ctx context.Context, sub domain.ReceptionSubmission) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var received domain.Order
	err := s.store.inTx(ctx, func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, sub.OrderID)
		if err != nil {
			return err
		}
		if sub.ReceivedAt.IsZero() {
			sub.ReceivedAt = s.now()
		}
		next, err := domain.ApplyReception(current, sub, draftIDSequence(ctx, tx))
		if err != nil {
			return err
		}
		if err := saveOrder(ctx, tx, next, current.Version); err != nil {
			return err
		}
		before, after := current.Snapshot().Changed(next.Snapshot())
		if _, err := insertModification(ctx, tx, domain.ModificationRecord{
			OrderID: sub.OrderID,
			At:      next.UpdatedAt,
			Actor:   sub.Actor,
			Reason:  strings.TrimSpace(sub.Notes),
			Before:  before,
			After:   after,
		}); err != nil {
			return err
		}
		if err := enqueueOrderEvents(ctx, tx, domain.EventOrderReceived, next, sub.Actor, sub.Notes, next.UpdatedAt); err != nil {
			return err
		}
		received = next
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return received, nil
}

func (s *orderStore) ListModifications(ctx context.Context, id int64) ([]domain.ModificationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := s.store.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	return listModifications(ctx, s.store.DB(), id)
}

// draftIDSequence выдаёт постоянные ID черновикам из последовательности order_draft_ids.
func draftIDSequence(ctx context.Context, tx *sql.Tx) func() (int64, error) {
	return func() (int64, error) {
		var id int64
		if err := tx.QueryRowContext(ctx, `SELECT nextval('order_draft_ids')`).Scan(&id); err != nil {
			return 0, fmt.Errorf("next draft id: %w", err)
		}
		return id, nil
	}
}

func lockOrder(ctx context.Context, tx *sql.Tx, id int64) (domain.Order, error) {
	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Order{}, orderLookupError(id, err)
	}
	return order, nil
}

// saveOrder перезаписывает строку заказа, если её версия всё ещё prevVersion.
func saveOrder(ctx context.Context, tx *sql.Tx, order domain.Order, prevVersion int64) error {
	row, err := encodeOrder(order)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET supplier_id = $1,
		    supplier_name = $2,
		    discount_pct = $3,
		    shipping_cost = $4,
		    expected_delivery = $5,
		    status = $6,
		    total = $7,
		    lines = $8,
		    draft_variants = $9,
		    draft_products = $10,
		    reception = $11,
		    version = $12,
		    updated_at = $13,
		    received_at = $14
		WHERE id = $15
		  AND version = $16
	`,
		order.Supplier.ID, order.Supplier.Name, order.DiscountPct, order.ShippingCost, row.expectedDelivery,
		string(order.Status), order.Total, row.lines, row.draftVariants, row.draftProducts, row.reception,
		order.Version, order.UpdatedAt, row.receivedAt,
		order.ID, prevVersion,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderVersionConflict
	}
	return nil
}

func orderLookupError(id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	return fmt.Errorf("select order %d: %w", id, err)
}

// orderRow — сериализованные колонки заказа.
type orderRow struct {
	lines            string
	draftVariants    string
	draftProducts    string
	reception        sql.NullString
	expectedDelivery sql.NullTime
	receivedAt       sql.NullTime
}

func encodeOrder(order domain.Order) (orderRow, error) {
	var (
		row orderRow
		err error
	)
	if row.lines, err = marshalColumn("lines", nonNil(order.Lines)); err != nil {
		return orderRow{}, err
	}
	if row.draftVariants, err = marshalColumn("draft_variants", nonNil(order.DraftVariants)); err != nil {
		return orderRow{}, err
	}
	if row.draftProducts, err = marshalColumn("draft_products", nonNil(order.DraftProducts)); err != nil {
		return orderRow{}, err
	}
	if order.Reception != nil {
		data, err := marshalColumn("reception", order.Reception)
		if err != nil {
			return orderRow{}, err
		}
		row.reception = sql.NullString{String: data, Valid: true}
	}
	if order.ExpectedDelivery != nil {
		row.expectedDelivery = sql.NullTime{Time: order.ExpectedDelivery.UTC(), Valid: true}
	}
	if order.ReceivedAt != nil {
		row.receivedAt = sql.NullTime{Time: order.ReceivedAt.UTC(), Valid: true}
	}
	return row, nil
}

func marshalColumn(name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	return string(data), nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                               domain.Order
		status                              string
		lines, draftVariants, draftProducts []byte
		reception                           []byte
		expectedDelivery, receivedAt        sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.Supplier.ID, &order.Supplier.Name, &order.DiscountPct, &order.ShippingCost, &expectedDelivery,
		&status, &order.Total, &lines, &draftVariants, &draftProducts, &reception,
		&order.CreatedBy.ID, &order.CreatedBy.Name, &order.Version, &order.CreatedAt, &order.UpdatedAt, &receivedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if expectedDelivery.Valid {
		t := expectedDelivery.Time.UTC()
		order.ExpectedDelivery = &t
	}
	if receivedAt.Valid {
		t := receivedAt.Time.UTC()
		order.ReceivedAt = &t
	}

	if err := json.Unmarshal(lines, &order.Lines); err != nil {
		return domain.Order{}, fmt.Errorf("decode lines: %w", err)
	}
	if err := json.Unmarshal(draftVariants, &order.DraftVariants); err != nil {
		return domain.Order{}, fmt.Errorf("decode draft_variants: %w", err)
	}
	if err := json.Unmarshal(draftProducts, &order.DraftProducts); err != nil {
		return domain.Order{}, fmt.Errorf("decode draft_products: %w", err)
	}
	if len(reception) > 0 {
		var record domain.ReceptionRecord
		if err := json.Unmarshal(reception, &record); err != nil {
			return domain.Order{}, fmt.Errorf("decode reception: %w", err)
		}
		order.Reception = &record
	}
	return order, nil
}

var _ domain.OrderStore = (*orderStore)(nil)
