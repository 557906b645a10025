package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineActual — фактические данные приёмки по строке заказа.
type LineActual struct {
	LineID       string           `json:"line_id"`
	ProductName  string           `json:"product_name"`
	OrderedQty   int              `json:"cantidad_pedida"`
	ReceivedQty  int              `json:"cantidad_recibida"`
	OriginalCost decimal.Decimal  `json:"precio_original"`
	RevisedCost  *decimal.Decimal `json:"precio_costo_nuevo"`
	PriceChanged bool             `json:"cambio_precio"`
	Subtotal     decimal.Decimal  `json:"subtotal"`
}

// EffectiveCost возвращает пересмотренную цену, если она задана, иначе исходную.
func (a LineActual) EffectiveCost() decimal.Decimal {
	if a.RevisedCost != nil {
		return *a.RevisedCost
	}
	return a.OriginalCost
}

// NewItem — незарегистрированная позиция, обнаруженная при физической приёмке.
type NewItem struct {
	ID         ID                `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Quantity   int               `json:"quantity"`
	UnitPrice  decimal.Decimal   `json:"unit_price"`
}

// Subtotal — количество, умноженное на цену.
func (n NewItem) Subtotal() decimal.Decimal {
	return n.UnitPrice.Mul(decimal.NewFromInt(int64(n.Quantity)))
}

// ReceivedLine — строка отправляемой приёмки. RevisedCost == nil означает «цена не менялась».
type ReceivedLine struct {
	LineID      string           `json:"line_id"`
	Received    int              `json:"cantidad_recibida"`
	RevisedCost *decimal.Decimal `json:"precio_costo_nuevo"`
}

// PromotionResult — результат продвижения черновика в постоянную запись каталога.
type PromotionResult struct {
	DraftID    ID       `json:"draft_id"`
	Kind       ItemKind `json:"kind"`
	ProductID  int64    `json:"product_id"`
	VariantIDs []int64  `json:"variant_ids,omitempty"`
}

// ReceptionSubmission — payload подтверждения приёмки для хранилища заказов.
// NewItems содержит только позиции, найденные при приёмке: они уходят в предрегистрацию (precarga),
// а непродвинутые черновики заказа остаются как есть.
type ReceptionSubmission struct {
	OrderID    int64             `json:"order_id"`
	Lines      []ReceivedLine    `json:"lines"`
	NewItems   []NewItem         `json:"new_items"`
	Promotions []PromotionResult `json:"promotions"`
	Notes      string            `json:"notes"`
	Actor      Actor             `json:"actor"`
	Total      decimal.Decimal   `json:"total"`
	ReceivedAt time.Time         `json:"received_at"`
}

// ReceptionRecord фиксируется один раз при приёмке и далее не меняется.
type ReceptionRecord struct {
	Lines      []LineActual      `json:"lines"`
	NewItems   []NewItem         `json:"new_items"`
	Promotions []PromotionResult `json:"promotions"`
	Notes      string            `json:"notes"`
	Actor      Actor             `json:"actor"`
	Total      decimal.Decimal   `json:"total"`
	ReceivedAt time.Time         `json:"received_at"`
}

func (r ReceptionRecord) clone() ReceptionRecord {
	dst := r
	dst.Lines = make([]LineActual, len(r.Lines))
	for i, line := range r.Lines {
		if line.RevisedCost != nil {
			v := *line.RevisedCost
			line.RevisedCost = &v
		}
		dst.Lines[i] = line
	}
	dst.NewItems = make([]NewItem, len(r.NewItems))
	for i, item := range r.NewItems {
		item.Attributes = CloneAttributes(item.Attributes)
		dst.NewItems[i] = item
	}
	dst.Promotions = make([]PromotionResult, len(r.Promotions))
	for i, p := range r.Promotions {
		p.VariantIDs = append([]int64(nil), p.VariantIDs...)
		dst.Promotions[i] = p
	}
	return dst
}

// ApplyReception возвращает копию заказа после приёмки: статус received, запись приёмки,
// продвинутые черновики превращены в строки каталога. Исходные строки не меняются.
// Новые позиции получают постоянные ID из nextID; временные токены в запись не попадают.
func ApplyReception(order Order, sub ReceptionSubmission, nextID func() (int64, error)) (Order, error) {
	if !order.Status.CanTransitionTo(OrderStatusReceived) {
		return Order{}, ErrInvalidState
	}

	verr := &ValidationError{}
	received := make(map[string]ReceivedLine, len(sub.Lines))
	for _, rl := range sub.Lines {
		if _, ok := order.LineByID(rl.LineID); !ok {
			verr.Add("lines", "unknown line %q", rl.LineID)
			continue
		}
		if rl.Received < 0 {
			verr.Add("lines."+rl.LineID, "received quantity must be non-negative")
		}
		if rl.RevisedCost != nil && !rl.RevisedCost.IsPositive() {
			verr.Add("lines."+rl.LineID, "revised cost must be greater than zero")
		}
		received[rl.LineID] = rl
	}
	promoted := make(map[string]PromotionResult, len(sub.Promotions))
	for _, p := range sub.Promotions {
		if p.DraftID.IsTemporary() || p.DraftID.IsZero() {
			verr.AddError("promotions", ErrTemporaryReference)
			continue
		}
		promoted[p.DraftID.String()] = p
	}
	if err := verr.OrNil(); err != nil {
		return Order{}, err
	}

	next := order.Clone()
	record := ReceptionRecord{
		Lines:      make([]LineActual, 0, len(order.Lines)),
		NewItems:   make([]NewItem, 0, len(sub.NewItems)),
		Promotions: make([]PromotionResult, 0, len(sub.Promotions)),
		Notes:      sub.Notes,
		Actor:      sub.Actor,
		Total:      sub.Total,
		ReceivedAt: sub.ReceivedAt,
	}
	for _, line := range order.Lines {
		actual := LineActual{
			LineID:       line.LineID,
			ProductName:  line.Product.Name,
			OrderedQty:   line.Quantity,
			ReceivedQty:  line.Quantity,
			OriginalCost: line.UnitCost,
		}
		if rl, ok := received[line.LineID]; ok {
			actual.ReceivedQty = rl.Received
			if rl.RevisedCost != nil && !rl.RevisedCost.Equal(line.UnitCost) {
				v := *rl.RevisedCost
				actual.RevisedCost = &v
				actual.PriceChanged = true
			}
		}
		actual.Subtotal = actual.EffectiveCost().Mul(decimal.NewFromInt(int64(actual.ReceivedQty)))
		record.Lines = append(record.Lines, actual)
	}
	for _, item := range sub.NewItems {
		if _, ok := item.ID.Permanent(); !ok {
			if nextID == nil {
				return Order{}, ErrTemporaryReference
			}
			num, err := nextID()
			if err != nil {
				return Order{}, fmt.Errorf("assign new item id: %w", err)
			}
			item.ID = PermanentID(num)
		}
		item.Attributes = CloneAttributes(item.Attributes)
		record.NewItems = append(record.NewItems, item)
	}

	keptVariants := next.DraftVariants[:0]
	for _, dv := range next.DraftVariants {
		p, ok := promoted[dv.ID.String()]
		if !ok || len(p.VariantIDs) == 0 {
			keptVariants = append(keptVariants, dv)
			continue
		}
		next.Lines = append(next.Lines, RegisteredLine{
			LineID:            uuid.NewString(),
			Product:           ProductRef{ID: dv.ProductID, Name: dv.ProductName, HasVariants: true},
			VariantID:         PermanentID(p.VariantIDs[0]),
			VariantAttributes: CloneAttributes(dv.Attributes),
			Quantity:          dv.Quantity,
			UnitCost:          dv.UnitPrice,
		})
		record.Promotions = append(record.Promotions, p)
	}
	next.DraftVariants = keptVariants

	keptProducts := next.DraftProducts[:0]
	for _, dp := range next.DraftProducts {
		p, ok := promoted[dp.ID.String()]
		if !ok || p.ProductID <= 0 {
			keptProducts = append(keptProducts, dp)
			continue
		}
		next.Lines = append(next.Lines, promotedProductLines(dp, p)...)
		record.Promotions = append(record.Promotions, p)
	}
	next.DraftProducts = keptProducts

	at := sub.ReceivedAt
	next.Status = OrderStatusReceived
	next.ReceivedAt = &at
	next.Reception = &record
	next.UpdatedAt = at
	next.Version++
	return next, nil
}

func promotedProductLines(dp DraftProduct, p PromotionResult) []RegisteredLine {
	ref := ProductRef{ID: p.ProductID, Name: dp.Name, HasVariants: dp.HasVariants()}
	if !dp.HasVariants() {
		return []RegisteredLine{{
			LineID:   uuid.NewString(),
			Product:  ref,
			Quantity: dp.Quantity,
			UnitCost: dp.UnitPrice,
		}}
	}
	lines := make([]RegisteredLine, 0, len(dp.Variants))
	for i, sv := range dp.Variants {
		var variantID ID
		if i < len(p.VariantIDs) {
			variantID = PermanentID(p.VariantIDs[i])
		}
		lines = append(lines, RegisteredLine{
			LineID:            uuid.NewString(),
			Product:           ref,
			VariantID:         variantID,
			VariantAttributes: CloneAttributes(sv.Attributes),
			Quantity:          sv.Quantity,
			UnitCost:          sv.UnitPrice,
		})
	}
	return lines
}
