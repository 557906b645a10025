package domain

import "github.com/shopspring/decimal"

// MoneyPlaces — количество знаков при отображении денежных сумм.
const MoneyPlaces = 2

// RoundMoney округляет сумму для отображения и payload; вычисления идут в полной точности.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyPlaces)
}

// Hundred — основание процента.
var Hundred = decimal.NewFromInt(100)
