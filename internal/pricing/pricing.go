// Package pricing считает суммы заказа поставщику по четырём видам позиций.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// Totals — результат расчёта. Subtotal не включает доставку, скидка считается от subtotal + доставка.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
}

// Rounded возвращает суммы, округлённые до копеек для отображения.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:       domain.RoundMoney(t.Subtotal),
		DiscountAmount: domain.RoundMoney(t.DiscountAmount),
		Total:          domain.RoundMoney(t.Total),
	}
}

// Calculate считает subtotal, скидку и итог. Некорректные позиции дают нулевой вклад, ошибок нет.
func Calculate(items []domain.Item, discountPct, shipping decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineSubtotal(item))
	}

	base := subtotal.Add(shipping)
	discount := base.Mul(discountPct).Div(domain.Hundred)
	total := base.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Totals{Subtotal: subtotal, DiscountAmount: discount, Total: total}
}

// ForOrder считает суммы сохранённого или редактируемого заказа.
func ForOrder(order domain.Order) Totals {
	return Calculate(order.Items(), order.DiscountPct, order.ShippingCost)
}

// ForPayload считает суммы нормализованного payload.
func ForPayload(p domain.OrderPayload) Totals {
	order := domain.Order{
		Lines:         p.Lines,
		DraftVariants: p.DraftVariants,
		DraftProducts: p.DraftProducts,
		DiscountPct:   p.DiscountPct,
		ShippingCost:  p.ShippingCost,
	}
	return ForOrder(order)
}

// LineSubtotal — вклад одной позиции в subtotal. Позиции по указателю считаются так же,
// nil и неизвестные реализации дают ноль.
func LineSubtotal(item domain.Item) decimal.Decimal {
	switch v := item.(type) {
	case domain.RegisteredLine:
		return lineAmount(v)
	case *domain.RegisteredLine:
		if v == nil {
			return decimal.Zero
		}
		return lineAmount(*v)
	case domain.DraftVariant:
		return amount(v.Quantity, v.UnitPrice)
	case *domain.DraftVariant:
		if v == nil {
			return decimal.Zero
		}
		return amount(v.Quantity, v.UnitPrice)
	case domain.DraftProduct:
		return draftProductAmount(v)
	case *domain.DraftProduct:
		if v == nil {
			return decimal.Zero
		}
		return draftProductAmount(*v)
	default:
		return decimal.Zero
	}
}

// Строка товара с вариантами без выбранного варианта вклада не даёт.
func lineAmount(line domain.RegisteredLine) decimal.Decimal {
	if line.Product.HasVariants && line.VariantID.IsZero() {
		return decimal.Zero
	}
	return amount(line.Quantity, line.UnitCost)
}

func draftProductAmount(dp domain.DraftProduct) decimal.Decimal {
	if !dp.HasVariants() {
		return amount(dp.Quantity, dp.UnitPrice)
	}
	sum := decimal.Zero
	for _, sv := range dp.Variants {
		sum = sum.Add(amount(sv.Quantity, sv.UnitPrice))
	}
	return sum
}

func amount(qty int, price decimal.Decimal) decimal.Decimal {
	if qty <= 0 || price.IsNegative() {
		return decimal.Zero
	}
	return price.Mul(decimal.NewFromInt(int64(qty)))
}
