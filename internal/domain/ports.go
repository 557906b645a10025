package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogService — каталог товаров (внешний сервис).
type CatalogService interface {
	// FindByName ищет товары по подстроке названия с опциональным фильтром категории.
	FindByName(ctx context.Context, term string, categoryID *int64) ([]Product, error)
	// GetStockDetail возвращает товар и его зарегистрированные варианты.
	GetStockDetail(ctx context.Context, productID int64) (StockDetail, error)
}

// OrderStore описывает требования к хранилищу заказов поставщику.
type OrderStore interface {
	// CreateOrder сохраняет новый заказ и присваивает ему идентификатор.
	CreateOrder(ctx context.Context, payload OrderPayload, actor Actor) (Order, error)
	// GetOrder возвращает заказ по идентификатору или ErrOrderNotFound.
	GetOrder(ctx context.Context, id int64) (Order, error)
	// UpdateOrder применяет правку к заказу в статусе pending и добавляет запись в журнал.
	UpdateOrder(ctx context.Context, id int64, payload OrderPayload, meta EditMeta) (Order, error)
	// SubmitReception переводит заказ в received одним действием.
	SubmitReception(ctx context.Context, sub ReceptionSubmission) (Order, error)
	// ListModifications возвращает журнал изменений заказа в порядке добавления.
	ListModifications(ctx context.Context, id int64) ([]ModificationRecord, error)
}

// VariantRegistration — данные для регистрации варианта.
type VariantRegistration struct {
	Attributes map[string]string `json:"attributes"`
	UnitPrice  decimal.Decimal   `json:"unit_price"`
	Quantity   int               `json:"quantity"`
}

// ProductRegistration — данные для регистрации нового товара.
type ProductRegistration struct {
	Name            string                `json:"name"`
	CategoryID      *int64                `json:"category_id,omitempty"`
	Brand           string                `json:"brand,omitempty"`
	UnitPrice       decimal.Decimal       `json:"unit_price"`
	Quantity        int                   `json:"quantity"`
	AttributeSchema []string              `json:"attribute_schema,omitempty"`
	Variants        []VariantRegistration `json:"variants,omitempty"`
}

// ProductRegistered — ответ сервиса регистрации товара.
type ProductRegistered struct {
	ProductID  int64   `json:"product_id"`
	VariantIDs []int64 `json:"variant_ids,omitempty"`
}

// PromotionService регистрирует черновики в каталоге (внешний сервис).
type PromotionService interface {
	RegisterProduct(ctx context.Context, reg ProductRegistration) (ProductRegistered, error)
	RegisterVariant(ctx context.Context, productID int64, reg VariantRegistration) (int64, error)
}

// PermissionOracle отвечает, есть ли у текущего пользователя разрешение.
type PermissionOracle interface {
	HasPermission(name string) bool
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPruner удаляет опубликованные сообщения старше before, не больше limit за вызов.
type OutboxPruner interface {
	DeleteSentBefore(ctx context.Context, before time.Time, limit int) (int, error)
}

// Типы событий заказа, попадающих в outbox.
const (
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventOrderReceived  = "order.received"
	EventDraftPromoted  = "draft.promoted"
	AggregateOrder      = "pedido"
	AggregateDraftEntry = "borrador"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Attempts      int
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
