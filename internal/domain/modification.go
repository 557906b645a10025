package domain

import (
	"strconv"
	"time"
)

// Ключи снимка заказа, которые отслеживает журнал изменений.
const (
	FieldSupplier         = "proveedor_id"
	FieldDiscount         = "pedido_descuento"
	FieldShipping         = "pedido_costo_envio"
	FieldExpectedDelivery = "pedido_fecha_entrega"
	FieldTotal            = "pedido_total"
	FieldStatus           = "pedido_estado"
	FieldReceivedAt       = "pedido_fecha_recepcion"
	FieldItemCount        = "cantidad_items"
	// FieldGenericStatus заполняется отдельным API смены статуса.
	FieldGenericStatus = "estado"
)

// Snapshot — плоский снимок полей заказа в строковом виде.
type Snapshot map[string]string

// Clone копирует снимок.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	dst := make(Snapshot, len(s))
	for k, v := range s {
		dst[k] = v
	}
	return dst
}

// Snapshot строит снимок заказа для журнала изменений.
func (o Order) Snapshot() Snapshot {
	snap := Snapshot{
		FieldSupplier:  strconv.FormatInt(o.Supplier.ID, 10),
		FieldDiscount:  o.DiscountPct.String(),
		FieldShipping:  o.ShippingCost.StringFixed(MoneyPlaces),
		FieldTotal:     o.Total.StringFixed(MoneyPlaces),
		FieldStatus:    string(o.Status),
		FieldItemCount: strconv.Itoa(len(o.Lines) + len(o.DraftVariants) + len(o.DraftProducts)),
	}
	if o.ExpectedDelivery != nil {
		snap[FieldExpectedDelivery] = o.ExpectedDelivery.UTC().Format(time.RFC3339)
	}
	if o.ReceivedAt != nil {
		snap[FieldReceivedAt] = o.ReceivedAt.UTC().Format(time.RFC3339)
	}
	return snap
}

// ModificationRecord — запись журнала изменений; только добавляется.
type ModificationRecord struct {
	ID      int64     `json:"id"`
	OrderID int64     `json:"order_id"`
	At      time.Time `json:"at"`
	Actor   Actor     `json:"actor"`
	Reason  string    `json:"reason"`
	Before  Snapshot  `json:"before"`
	After   Snapshot  `json:"after"`
}

// Changed возвращает пару снимков только с изменившимися полями.
// Поле, исчезнувшее в after, попадает в after пустой строкой.
func (s Snapshot) Changed(after Snapshot) (Snapshot, Snapshot) {
	before, next := Snapshot{}, Snapshot{}
	for k, v := range after {
		if prev, ok := s[k]; !ok || prev != v {
			before[k] = s[k]
			next[k] = v
		}
	}
	for k, prev := range s {
		if _, ok := after[k]; !ok {
			before[k] = prev
			next[k] = ""
		}
	}
	return before, next
}
