package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа поставщику (pedido).
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ещё может редактироваться.
	OrderStatusPending OrderStatus = "pendiente"
	// OrderStatusReceived — товар принят; терминальный статус для приёмки.
	OrderStatusReceived OrderStatus = "recibido"
	// OrderStatusCancelled — заказ отменён (обрабатывается вне ядра).
	OrderStatusCancelled OrderStatus = "cancelado"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusReceived, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет легальность перехода. Из pending можно только в received или cancelled.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	return s == OrderStatusPending && (target == OrderStatusReceived || target == OrderStatusCancelled)
}

// RegisteredLine — строка заказа по товару каталога.
// Для товара с вариантами строка учитывается только при выбранном варианте.
type RegisteredLine struct {
	// LineID стабилен в пределах сессии и после сохранения; используется приёмкой.
	LineID  string     `json:"line_id"`
	Product ProductRef `json:"product"`
	// VariantID пуст для простого товара; временный ID означает новый вариант-плейсхолдер.
	VariantID ID `json:"variant_id"`
	// VariantAttributes заполняется для временного варианта.
	VariantAttributes map[string]string `json:"variant_attributes,omitempty"`
	Quantity          int               `json:"quantity"`
	UnitCost          decimal.Decimal   `json:"unit_cost"`
}

// DraftVariant — новый вариант уже зарегистрированного товара.
type DraftVariant struct {
	ID          ID                `json:"id"`
	ProductID   int64             `json:"product_id"`
	ProductName string            `json:"product_name,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	Quantity    int               `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
}

// DraftSubVariant — вариант внутри нового (незарегистрированного) товара.
type DraftSubVariant struct {
	Attributes map[string]string `json:"attributes"`
	Quantity   int               `json:"quantity"`
	UnitPrice  decimal.Decimal   `json:"unit_price"`
}

// DraftProduct — полностью новый товар каталога.
// Либо плоские Quantity/UnitPrice, либо список Variants, но не оба сразу.
type DraftProduct struct {
	ID              ID                `json:"id"`
	Name            string            `json:"name"`
	CategoryID      *int64            `json:"category_id,omitempty"`
	Brand           string            `json:"brand,omitempty"`
	Quantity        int               `json:"quantity"`
	UnitPrice       decimal.Decimal   `json:"unit_price"`
	AttributeSchema []string          `json:"attribute_schema,omitempty"`
	Variants        []DraftSubVariant `json:"variants,omitempty"`
}

// HasVariants сообщает, что черновик товара описан через вложенные варианты.
func (d DraftProduct) HasVariants() bool { return len(d.Variants) > 0 }

// Order агрегирует состояние заказа поставщику.
type Order struct {
	// ID равен 0, пока заказ не сохранён.
	ID               int64            `json:"id"`
	Supplier         Supplier         `json:"supplier"`
	DiscountPct      decimal.Decimal  `json:"discount_pct"`
	ShippingCost     decimal.Decimal  `json:"shipping_cost"`
	ExpectedDelivery *time.Time       `json:"expected_delivery,omitempty"`
	Status           OrderStatus      `json:"status"`
	Lines            []RegisteredLine `json:"lines"`
	DraftVariants    []DraftVariant   `json:"draft_variants"`
	DraftProducts    []DraftProduct   `json:"draft_products"`
	// Total фиксируется при сохранении и нужен аудиту истории.
	Total      decimal.Decimal  `json:"total"`
	CreatedBy  Actor            `json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	ReceivedAt *time.Time       `json:"received_at,omitempty"`
	Reception  *ReceptionRecord `json:"reception,omitempty"`
	Version    int64            `json:"version"`
}

// Items раскладывает три коллекции заказа в замкнутый набор позиций для расчёта сумм.
func (o Order) Items() []Item {
	items := make([]Item, 0, len(o.Lines)+len(o.DraftVariants)+len(o.DraftProducts))
	for _, line := range o.Lines {
		items = append(items, line)
	}
	for _, dv := range o.DraftVariants {
		items = append(items, dv)
	}
	for _, dp := range o.DraftProducts {
		items = append(items, dp)
	}
	return items
}

// LineByID ищет строку по идентификатору.
func (o Order) LineByID(lineID string) (RegisteredLine, bool) {
	for _, line := range o.Lines {
		if line.LineID == lineID {
			return line, true
		}
	}
	return RegisteredLine{}, false
}

// Clone возвращает глубокую копию заказа: рабочие копии сессий не делят срезы и карты.
func (o Order) Clone() Order {
	dst := o
	dst.Lines = make([]RegisteredLine, len(o.Lines))
	for i, line := range o.Lines {
		line.VariantAttributes = CloneAttributes(line.VariantAttributes)
		dst.Lines[i] = line
	}
	dst.DraftVariants = make([]DraftVariant, len(o.DraftVariants))
	for i, dv := range o.DraftVariants {
		dv.Attributes = CloneAttributes(dv.Attributes)
		dst.DraftVariants[i] = dv
	}
	dst.DraftProducts = make([]DraftProduct, len(o.DraftProducts))
	for i, dp := range o.DraftProducts {
		dst.DraftProducts[i] = cloneDraftProduct(dp)
	}
	if o.ExpectedDelivery != nil {
		v := *o.ExpectedDelivery
		dst.ExpectedDelivery = &v
	}
	if o.ReceivedAt != nil {
		v := *o.ReceivedAt
		dst.ReceivedAt = &v
	}
	if o.Reception != nil {
		rec := o.Reception.clone()
		dst.Reception = &rec
	}
	return dst
}

func cloneDraftProduct(dp DraftProduct) DraftProduct {
	dp.AttributeSchema = append([]string(nil), dp.AttributeSchema...)
	if dp.Variants != nil {
		variants := make([]DraftSubVariant, len(dp.Variants))
		for i, sv := range dp.Variants {
			sv.Attributes = CloneAttributes(sv.Attributes)
			variants[i] = sv
		}
		dp.Variants = variants
	}
	if dp.CategoryID != nil {
		v := *dp.CategoryID
		dp.CategoryID = &v
	}
	return dp
}

// OrderPayload — нормализованные данные заказа, передаваемые хранилищу при создании/редактировании.
type OrderPayload struct {
	Supplier         Supplier         `json:"supplier"`
	DiscountPct      decimal.Decimal  `json:"discount_pct"`
	ShippingCost     decimal.Decimal  `json:"shipping_cost"`
	ExpectedDelivery *time.Time       `json:"expected_delivery,omitempty"`
	Lines            []RegisteredLine `json:"lines"`
	DraftVariants    []DraftVariant   `json:"draft_variants"`
	DraftProducts    []DraftProduct   `json:"draft_products"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	DiscountAmount   decimal.Decimal  `json:"discount_amount"`
	Total            decimal.Decimal  `json:"total"`
}

// ValidateInvariants проверяет инварианты нормализованного payload и возвращает список замечаний.
func (p OrderPayload) ValidateInvariants() []error {
	var errs []error

	if p.Supplier.ID <= 0 {
		errs = append(errs, ErrSupplierRequired)
	}
	if len(p.Lines)+len(p.DraftVariants)+len(p.DraftProducts) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if p.DiscountPct.IsNegative() || p.ShippingCost.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}

	for _, line := range p.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if line.UnitCost.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
		// В нормализованных строках допустимы только постоянные варианты.
		if line.VariantID.IsTemporary() {
			errs = append(errs, ErrTemporaryReference)
		}
		if line.Product.HasVariants && line.VariantID.IsZero() {
			errs = append(errs, ErrVariantRequired)
		}
	}
	for _, dv := range p.DraftVariants {
		if dv.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if dv.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	for _, dp := range p.DraftProducts {
		if dp.HasVariants() && (dp.Quantity != 0 || !dp.UnitPrice.IsZero()) {
			errs = append(errs, ErrDraftShapeInvalid)
		}
	}

	return errs
}

// Validate собирает замечания ValidateInvariants в один ValidationError.
func (p OrderPayload) Validate() error {
	verr := &ValidationError{}
	for _, err := range p.ValidateInvariants() {
		verr.AddError("payload", err)
	}
	return verr.OrNil()
}

// ApplyPayload переносит нормализованный payload в заказ. Временные и пустые ID черновиков
// заменяются постоянными из nextDraftID; постоянные сохраняются.
func (o *Order) ApplyPayload(p OrderPayload, nextDraftID func() (int64, error), newLineID func() string) error {
	draftID := func(id ID) (ID, error) {
		if _, ok := id.Permanent(); ok {
			return id, nil
		}
		num, err := nextDraftID()
		if err != nil {
			return ID{}, fmt.Errorf("assign draft id: %w", err)
		}
		return PermanentID(num), nil
	}

	scratch := Order{Lines: p.Lines, DraftVariants: p.DraftVariants, DraftProducts: p.DraftProducts}.Clone()
	for i := range scratch.Lines {
		if scratch.Lines[i].LineID == "" {
			scratch.Lines[i].LineID = newLineID()
		}
	}
	for i := range scratch.DraftVariants {
		id, err := draftID(scratch.DraftVariants[i].ID)
		if err != nil {
			return err
		}
		scratch.DraftVariants[i].ID = id
	}
	for i := range scratch.DraftProducts {
		id, err := draftID(scratch.DraftProducts[i].ID)
		if err != nil {
			return err
		}
		scratch.DraftProducts[i].ID = id
	}

	o.Supplier = p.Supplier
	o.DiscountPct = p.DiscountPct
	o.ShippingCost = p.ShippingCost
	o.ExpectedDelivery = nil
	if p.ExpectedDelivery != nil {
		at := *p.ExpectedDelivery
		o.ExpectedDelivery = &at
	}
	o.Total = p.Total
	o.Lines = scratch.Lines
	o.DraftVariants = scratch.DraftVariants
	o.DraftProducts = scratch.DraftProducts
	return nil
}
