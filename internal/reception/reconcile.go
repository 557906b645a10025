// Package reception сверяет физическую приёмку с заказом поставщику.
package reception

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/pricing"
)

// LineInput — фактические данные по строке. Received == nil означает «получено как заказано».
type LineInput struct {
	LineID      string
	Received    *int
	RevisedCost *decimal.Decimal
}

// NewItemInput — позиция, найденная при приёмке и отсутствующая в заказе.
type NewItemInput struct {
	Name       string
	Attributes map[string]string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// Input — ввод пользователя при приёмке.
type Input struct {
	Lines []LineInput
	// Promote — черновики заказа, явно выбранные для продвижения.
	Promote  []domain.ID
	NewItems []NewItemInput
	Notes    string
}

// DraftCandidate — черновик заказа, участвующий в приёмке.
type DraftCandidate struct {
	Item     domain.Item
	DraftID  domain.ID
	Kind     domain.ItemKind
	Name     string
	Subtotal decimal.Decimal
	Promote  bool
}

// Result — вычисленная приёмка. Исходный заказ не меняется.
type Result struct {
	OrderID       int64
	Lines         []domain.LineActual
	Drafts        []DraftCandidate
	NewItems      []domain.NewItem
	Notes         string
	Actor         domain.Actor
	LinesTotal    decimal.Decimal
	DraftsTotal   decimal.Decimal
	NewItemsTotal decimal.Decimal
	Total         decimal.Decimal
}

// Reconcile проверяет ввод и считает приёмку. Все замечания возвращаются одним ValidationError.
// Приёмка возможна только для заказа в статусе pending.
func Reconcile(order domain.Order, in Input, actor domain.Actor) (Result, error) {
	if !order.Status.CanTransitionTo(domain.OrderStatusReceived) {
		return Result{}, fmt.Errorf("receive order %d in status %s: %w", order.ID, order.Status, domain.ErrInvalidState)
	}

	verr := &domain.ValidationError{}
	inputs := make(map[string]LineInput, len(in.Lines))
	for _, li := range in.Lines {
		field := "lines." + li.LineID
		if _, ok := order.LineByID(li.LineID); !ok {
			verr.Add("lines", "unknown line %q", li.LineID)
			continue
		}
		if _, dup := inputs[li.LineID]; dup {
			verr.Add(field, "line entered more than once")
			continue
		}
		if li.Received != nil && *li.Received < 0 {
			verr.Add(field+".cantidad_recibida", "received quantity must be non-negative")
		}
		if li.RevisedCost != nil && !li.RevisedCost.IsPositive() {
			verr.Add(field+".precio_costo_nuevo", "revised cost must be greater than zero")
		}
		inputs[li.LineID] = li
	}

	selected := make(map[string]bool, len(in.Promote))
	for _, id := range in.Promote {
		selected[id.String()] = true
	}

	res := Result{
		OrderID:       order.ID,
		Lines:         make([]domain.LineActual, 0, len(order.Lines)),
		Notes:         strings.TrimSpace(in.Notes),
		Actor:         actor,
		LinesTotal:    decimal.Zero,
		DraftsTotal:   decimal.Zero,
		NewItemsTotal: decimal.Zero,
	}

	for _, line := range order.Lines {
		actual := domain.LineActual{
			LineID:       line.LineID,
			ProductName:  line.Product.Name,
			OrderedQty:   line.Quantity,
			ReceivedQty:  line.Quantity,
			OriginalCost: line.UnitCost,
		}
		if li, ok := inputs[line.LineID]; ok {
			if li.Received != nil {
				actual.ReceivedQty = *li.Received
			}
			if li.RevisedCost != nil && !li.RevisedCost.Equal(line.UnitCost) {
				v := *li.RevisedCost
				actual.RevisedCost = &v
				actual.PriceChanged = true
			}
		}
		actual.Subtotal = actual.EffectiveCost().Mul(decimal.NewFromInt(int64(actual.ReceivedQty)))
		res.Lines = append(res.Lines, actual)
		res.LinesTotal = res.LinesTotal.Add(actual.Subtotal)
	}

	for _, dv := range order.DraftVariants {
		res.Drafts = append(res.Drafts, candidate(dv, dv.ID, variantName(dv), selected))
	}
	for _, dp := range order.DraftProducts {
		res.Drafts = append(res.Drafts, candidate(dp, dp.ID, dp.Name, selected))
	}
	known := make(map[string]bool, len(res.Drafts))
	for _, c := range res.Drafts {
		known[c.DraftID.String()] = true
		res.DraftsTotal = res.DraftsTotal.Add(c.Subtotal)
	}
	for _, id := range in.Promote {
		if !known[id.String()] {
			verr.Add("promote", "unknown draft %s", id)
		}
	}

	for i, ni := range in.NewItems {
		field := fmt.Sprintf("new_items[%d]", i)
		name := strings.TrimSpace(ni.Name)
		if name == "" {
			verr.Add(field+".name", "name is required")
		}
		if ni.Quantity <= 0 {
			verr.AddError(field+".quantity", domain.ErrItemQtyInvalid)
		}
		if !ni.UnitPrice.IsPositive() {
			verr.Add(field+".unit_price", "price must be greater than zero")
		}
		item := domain.NewItem{
			ID:         domain.NewTemporaryID(),
			Name:       name,
			Attributes: domain.CloneAttributes(ni.Attributes),
			Quantity:   ni.Quantity,
			UnitPrice:  ni.UnitPrice,
		}
		res.NewItems = append(res.NewItems, item)
		res.NewItemsTotal = res.NewItemsTotal.Add(item.Subtotal())
	}

	if err := verr.OrNil(); err != nil {
		return Result{}, err
	}
	res.Total = res.LinesTotal.Add(res.DraftsTotal).Add(res.NewItemsTotal)
	return res, nil
}

func candidate(item domain.Item, id domain.ID, name string, selected map[string]bool) DraftCandidate {
	return DraftCandidate{
		Item:     item,
		DraftID:  id,
		Kind:     item.Kind(),
		Name:     name,
		Subtotal: pricing.LineSubtotal(item),
		Promote:  selected[id.String()],
	}
}

func variantName(dv domain.DraftVariant) string {
	if len(dv.Attributes) == 0 {
		return dv.ProductName
	}
	keys := make([]string, 0, len(dv.Attributes))
	for k := range dv.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+dv.Attributes[k])
	}
	return strings.TrimSpace(dv.ProductName + " (" + strings.Join(parts, ", ") + ")")
}

// ToPromote возвращает черновики, выбранные для продвижения, в порядке заказа.
func (r Result) ToPromote() []domain.Item {
	var out []domain.Item
	for _, c := range r.Drafts {
		if c.Promote {
			out = append(out, c.Item)
		}
	}
	return out
}

// Submission строит payload подтверждения. Для строк без изменения цены RevisedCost == nil.
func (r Result) Submission(promotions []domain.PromotionResult, at time.Time) domain.ReceptionSubmission {
	sub := domain.ReceptionSubmission{
		OrderID:    r.OrderID,
		Lines:      make([]domain.ReceivedLine, 0, len(r.Lines)),
		NewItems:   make([]domain.NewItem, 0, len(r.NewItems)),
		Promotions: make([]domain.PromotionResult, 0, len(promotions)),
		Notes:      r.Notes,
		Actor:      r.Actor,
		Total:      domain.RoundMoney(r.Total),
		ReceivedAt: at,
	}
	for _, line := range r.Lines {
		rl := domain.ReceivedLine{LineID: line.LineID, Received: line.ReceivedQty}
		if line.PriceChanged && line.RevisedCost != nil {
			v := *line.RevisedCost
			rl.RevisedCost = &v
		}
		sub.Lines = append(sub.Lines, rl)
	}
	for _, item := range r.NewItems {
		item.Attributes = domain.CloneAttributes(item.Attributes)
		sub.NewItems = append(sub.NewItems, item)
	}
	for _, p := range promotions {
		p.VariantIDs = append([]int64(nil), p.VariantIDs...)
		sub.Promotions = append(sub.Promotions, p)
	}
	return sub
}
