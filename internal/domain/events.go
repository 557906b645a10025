package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// OrderEvent — payload событий заказа в outbox.
type OrderEvent struct {
	OrderID    int64       `json:"order_id"`
	SupplierID int64       `json:"supplier_id"`
	Status     OrderStatus `json:"status"`
	Total      string      `json:"total"`
	ItemCount  int         `json:"item_count"`
	Version    int64       `json:"version"`
	Actor      Actor       `json:"actor"`
	Reason     string      `json:"reason,omitempty"`
	NewItems   int         `json:"new_items,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// DraftPromotedEvent — payload события продвижения черновика.
type DraftPromotedEvent struct {
	OrderID    int64           `json:"order_id"`
	Promotion  PromotionResult `json:"promotion"`
	Actor      Actor           `json:"actor"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewOrderEventMessage строит outbox-сообщение о заказе.
func NewOrderEventMessage(eventType string, order Order, actor Actor, reason string) (OutboxMessage, error) {
	event := OrderEvent{
		OrderID:    order.ID,
		SupplierID: order.Supplier.ID,
		Status:     order.Status,
		Total:      order.Total.StringFixed(MoneyPlaces),
		ItemCount:  len(order.Lines) + len(order.DraftVariants) + len(order.DraftProducts),
		Version:    order.Version,
		Actor:      actor,
		Reason:     reason,
		OccurredAt: order.UpdatedAt,
	}
	if order.Reception != nil {
		event.NewItems = len(order.Reception.NewItems)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     eventType,
		Payload:       data,
	}, nil
}

// NewDraftPromotedMessage строит outbox-сообщение о продвижении черновика.
func NewDraftPromotedMessage(orderID int64, p PromotionResult, actor Actor, at time.Time) (OutboxMessage, error) {
	data, err := json.Marshal(DraftPromotedEvent{OrderID: orderID, Promotion: p, Actor: actor, OccurredAt: at})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", EventDraftPromoted, err)
	}
	return OutboxMessage{
		AggregateType: AggregateDraftEntry,
		AggregateID:   p.DraftID.String(),
		EventType:     EventDraftPromoted,
		Payload:       data,
	}, nil
}

// OrderEvents строит события, которые сопровождают сохранение заказа.
// Для приёмки к событию заказа добавляется по событию на каждый продвинутый черновик.
func OrderEvents(eventType string, order Order, actor Actor, reason string) ([]OutboxMessage, error) {
	msg, err := NewOrderEventMessage(eventType, order, actor, reason)
	if err != nil {
		return nil, err
	}
	out := []OutboxMessage{msg}
	if eventType != EventOrderReceived || order.Reception == nil {
		return out, nil
	}
	for _, p := range order.Reception.Promotions {
		promoted, err := NewDraftPromotedMessage(order.ID, p, actor, order.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, promoted)
	}
	return out, nil
}

// DeadLetter — сообщение outbox, которое не удалось опубликовать после всех попыток.
// Содержит исходное событие целиком, чтобы его можно было переиграть.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	Error         string          `json:"error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// NewDeadLetter фиксирует неудачную публикацию msg.
func NewDeadLetter(msg OutboxMessage, attempts int, cause error, at time.Time) DeadLetter {
	dl := DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(append([]byte(nil), msg.Payload...)),
		Attempts:      attempts,
		FailedAt:      at,
	}
	if cause != nil {
		dl.Error = cause.Error()
	}
	return dl
}

// Message восстанавливает исходное outbox-сообщение.
func (d DeadLetter) Message() OutboxMessage {
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       append([]byte(nil), d.Payload...),
	}
}
