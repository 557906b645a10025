package domain

import "github.com/shopspring/decimal"

// Supplier — ссылка на поставщика. Заказ ссылается на него, но не владеет им.
type Supplier struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product описывает товар каталога в объёме, нужном для заказа поставщику.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Brand       string          `json:"brand,omitempty"`
	HasVariants bool            `json:"has_variants"`
	Cost        decimal.Decimal `json:"cost"`
	Stock       int             `json:"stock"`
}

// Ref возвращает ссылку на товар для строки заказа.
func (p Product) Ref() ProductRef {
	return ProductRef{ID: p.ID, Name: p.Name, HasVariants: p.HasVariants}
}

// Variant — зарегистрированный вариант товара (например, {"Talla": "XL"}).
type Variant struct {
	ID         int64             `json:"id"`
	ProductID  int64             `json:"product_id"`
	Attributes map[string]string `json:"attributes"`
	Cost       decimal.Decimal   `json:"cost"`
	Stock      int               `json:"stock"`
}

// StockDetail — ответ каталога: товар и его зарегистрированные варианты.
type StockDetail struct {
	Product  Product   `json:"product"`
	Variants []Variant `json:"variants"`
}

// ProductRef — ссылка строки заказа на товар каталога.
type ProductRef struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	HasVariants bool   `json:"has_variants"`
}

// CloneAttributes копирует карту атрибутов, чтобы сессии не делили состояние.
func CloneAttributes(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
