package composer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/pricing"
)

// BuildPayload проверяет рабочую копию заказа и строит нормализованный payload.
// Все замечания собираются в один ValidationError; входной заказ не меняется.
func BuildPayload(order domain.Order) (domain.OrderPayload, error) {
	verr := &domain.ValidationError{}
	payload := domain.OrderPayload{
		Supplier:         order.Supplier,
		DiscountPct:      order.DiscountPct,
		ShippingCost:     order.ShippingCost,
		ExpectedDelivery: order.ExpectedDelivery,
		Lines:            []domain.RegisteredLine{},
		DraftVariants:    []domain.DraftVariant{},
		DraftProducts:    []domain.DraftProduct{},
	}

	if order.Supplier.ID <= 0 {
		verr.AddError("supplier", domain.ErrSupplierRequired)
	}
	if order.DiscountPct.IsNegative() {
		verr.AddError("discount", domain.ErrAmountNegative)
	}
	if order.ShippingCost.IsNegative() {
		verr.AddError("shipping_cost", domain.ErrAmountNegative)
	}

	for _, line := range order.Lines {
		// Товар с вариантами без выбора молча исключается.
		if line.Product.HasVariants && line.VariantID.IsZero() {
			continue
		}
		field := "lines." + line.LineID
		checkAmounts(verr, field, line.Quantity, line.UnitCost.IsNegative())
		if line.VariantID.IsTemporary() {
			payload.DraftVariants = append(payload.DraftVariants, domain.DraftVariant{
				ID:          line.VariantID,
				ProductID:   line.Product.ID,
				ProductName: line.Product.Name,
				Attributes:  domain.CloneAttributes(line.VariantAttributes),
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitCost,
			})
			continue
		}
		line.VariantAttributes = domain.CloneAttributes(line.VariantAttributes)
		payload.Lines = append(payload.Lines, line)
	}

	for i, dv := range order.DraftVariants {
		field := fmt.Sprintf("draft_variants[%d]", i)
		checkAmounts(verr, field, dv.Quantity, dv.UnitPrice.IsNegative())
		if dv.ProductID <= 0 {
			verr.Add(field+".product", "owning product must be registered")
		}
		if len(dv.Attributes) == 0 {
			verr.Add(field+".attributes", "variant attributes are required")
		}
		dv.Attributes = domain.CloneAttributes(dv.Attributes)
		payload.DraftVariants = append(payload.DraftVariants, dv)
	}

	payload.DraftProducts = consolidateDraftProducts(order.DraftProducts, verr)

	if len(payload.Lines)+len(payload.DraftVariants)+len(payload.DraftProducts) == 0 {
		verr.AddError("items", domain.ErrItemsRequired)
	}
	if err := verr.OrNil(); err != nil {
		return domain.OrderPayload{}, err
	}

	totals := pricing.ForPayload(payload).Rounded()
	payload.Subtotal = totals.Subtotal
	payload.DiscountAmount = totals.DiscountAmount
	payload.Total = totals.Total
	return payload, nil
}

func checkAmounts(verr *domain.ValidationError, field string, qty int, negativePrice bool) {
	if qty <= 0 {
		verr.AddError(field+".quantity", domain.ErrItemQtyInvalid)
	}
	if negativePrice {
		verr.AddError(field+".price", domain.ErrItemPriceInvalid)
	}
}

// consolidateDraftProducts сводит черновики с одинаковым названием в одну запись:
// плоские складываются по количеству при одинаковой цене, варианты объединяются.
func consolidateDraftProducts(drafts []domain.DraftProduct, verr *domain.ValidationError) []domain.DraftProduct {
	out := []domain.DraftProduct{}
	index := make(map[string]int, len(drafts))

	for i, dp := range drafts {
		field := fmt.Sprintf("draft_products[%d]", i)
		if dp.HasVariants() {
			for j, sv := range dp.Variants {
				checkAmounts(verr, fmt.Sprintf("%s.variants[%d]", field, j), sv.Quantity, sv.UnitPrice.IsNegative())
				if len(sv.Attributes) == 0 {
					verr.Add(fmt.Sprintf("%s.variants[%d].attributes", field, j), "variant attributes are required")
				}
			}
		} else {
			checkAmounts(verr, field, dp.Quantity, dp.UnitPrice.IsNegative())
		}
		name := strings.TrimSpace(dp.Name)
		if name == "" {
			verr.Add(field+".name", "product name is required")
			continue
		}

		key := normalizeName(name)
		pos, seen := index[key]
		if !seen {
			dp = cloneDraft(dp)
			dp.Name = name
			if dp.HasVariants() {
				dp.Quantity = 0
				dp.UnitPrice = decimal.Zero
			}
			index[key] = len(out)
			out = append(out, dp)
			continue
		}

		existing := out[pos]
		switch {
		case existing.HasVariants() != dp.HasVariants():
			verr.AddError(field, domain.ErrDraftShapeInvalid)
		case dp.HasVariants():
			existing.Variants = append(existing.Variants, cloneSubVariants(dp.Variants)...)
			existing.AttributeSchema = mergeSchema(existing.AttributeSchema, dp.AttributeSchema)
		case !existing.UnitPrice.Equal(dp.UnitPrice):
			verr.Add(field+".price", "conflicting prices for product %q: %s and %s",
				name, existing.UnitPrice.String(), dp.UnitPrice.String())
		default:
			existing.Quantity += dp.Quantity
		}
		out[pos] = existing
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func cloneDraft(dp domain.DraftProduct) domain.DraftProduct {
	dp.AttributeSchema = append([]string(nil), dp.AttributeSchema...)
	dp.Variants = cloneSubVariants(dp.Variants)
	if dp.CategoryID != nil {
		v := *dp.CategoryID
		dp.CategoryID = &v
	}
	return dp
}

// mergeSchema объединяет схемы атрибутов в порядке первого появления.
func mergeSchema(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, name := range a {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	for _, name := range b {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
