package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// Catalog — in-memory каталог товаров. Он же регистрирует продвинутые черновики,
// поэтому новые товары сразу доступны поиску.
type Catalog struct {
	mu       sync.RWMutex
	nextID   int64
	products map[int64]domain.Product
	variants map[int64][]domain.Variant
}

// NewCatalog создаёт каталог с начальным набором товаров.
func NewCatalog(seed ...domain.StockDetail) *Catalog {
	c := &Catalog{
		products: make(map[int64]domain.Product),
		variants: make(map[int64][]domain.Variant),
	}
	for _, detail := range seed {
		c.put(detail)
	}
	return c
}

func (c *Catalog) put(detail domain.StockDetail) {
	product := detail.Product
	product.HasVariants = product.HasVariants || len(detail.Variants) > 0
	c.products[product.ID] = product
	c.variants[product.ID] = cloneVariants(detail.Variants)
	if product.ID > c.nextID {
		c.nextID = product.ID
	}
	for _, v := range detail.Variants {
		if v.ID > c.nextID {
			c.nextID = v.ID
		}
	}
}

// FindByName ищет товары по подстроке названия без учёта регистра.
func (c *Catalog) FindByName(ctx context.Context, term string, categoryID *int64) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(term))

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Product, 0)
	for _, p := range c.products {
		if !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		if categoryID != nil && (p.CategoryID == nil || *p.CategoryID != *categoryID) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetStockDetail возвращает товар и его варианты.
func (c *Catalog) GetStockDetail(ctx context.Context, productID int64) (domain.StockDetail, error) {
	if err := ctx.Err(); err != nil {
		return domain.StockDetail{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productID]
	if !ok {
		return domain.StockDetail{}, fmt.Errorf("product %d: %w", productID, domain.ErrProductNotFound)
	}
	return domain.StockDetail{Product: p, Variants: cloneVariants(c.variants[productID])}, nil
}

// RegisterProduct создаёт товар и по варианту на каждую запись reg.Variants.
func (c *Catalog) RegisterProduct(ctx context.Context, reg domain.ProductRegistration) (domain.ProductRegistered, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProductRegistered{}, err
	}
	name := strings.TrimSpace(reg.Name)
	if name == "" {
		verr := &domain.ValidationError{}
		verr.Add("name", "is required")
		return domain.ProductRegistered{}, verr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.products {
		if strings.EqualFold(p.Name, name) && sameCategory(p.CategoryID, reg.CategoryID) {
			return domain.ProductRegistered{}, fmt.Errorf("product %q: %w", name, domain.ErrAlreadyPromoted)
		}
	}

	c.nextID++
	product := domain.Product{
		ID:          c.nextID,
		Name:        name,
		CategoryID:  reg.CategoryID,
		Brand:       reg.Brand,
		HasVariants: len(reg.Variants) > 0,
		Cost:        reg.UnitPrice,
	}
	resp := domain.ProductRegistered{ProductID: product.ID}
	variants := make([]domain.Variant, 0, len(reg.Variants))
	for _, v := range reg.Variants {
		c.nextID++
		variants = append(variants, domain.Variant{
			ID:         c.nextID,
			ProductID:  product.ID,
			Attributes: domain.CloneAttributes(v.Attributes),
			Cost:       v.UnitPrice,
		})
		resp.VariantIDs = append(resp.VariantIDs, c.nextID)
	}
	c.products[product.ID] = product
	c.variants[product.ID] = variants
	return resp, nil
}

// RegisterVariant добавляет вариант существующему товару.
// Вариант с теми же атрибутами уже существует: ErrAlreadyPromoted.
func (c *Catalog) RegisterVariant(ctx context.Context, productID int64, reg domain.VariantRegistration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	product, ok := c.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, domain.ErrProductNotFound)
	}
	for _, v := range c.variants[productID] {
		if sameAttributes(v.Attributes, reg.Attributes) {
			return 0, fmt.Errorf("variant of product %d: %w", productID, domain.ErrAlreadyPromoted)
		}
	}

	c.nextID++
	c.variants[productID] = append(c.variants[productID], domain.Variant{
		ID:         c.nextID,
		ProductID:  productID,
		Attributes: domain.CloneAttributes(reg.Attributes),
		Cost:       reg.UnitPrice,
	})
	product.HasVariants = true
	c.products[productID] = product
	return c.nextID, nil
}

func cloneVariants(src []domain.Variant) []domain.Variant {
	dst := make([]domain.Variant, len(src))
	for i, v := range src {
		v.Attributes = domain.CloneAttributes(v.Attributes)
		dst[i] = v
	}
	return dst
}

func sameCategory(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameAttributes(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if !strings.EqualFold(b[k], v) {
			return false
		}
	}
	return true
}

// NewSeedProduct — помощник для начального наполнения каталога.
func NewSeedProduct(id int64, name string, cost string, variants ...domain.Variant) domain.StockDetail {
	for i := range variants {
		variants[i].ProductID = id
	}
	return domain.StockDetail{
		Product: domain.Product{
			ID:          id,
			Name:        name,
			HasVariants: len(variants) > 0,
			Cost:        decimal.RequireFromString(cost),
		},
		Variants: variants,
	}
}

var (
	_ domain.CatalogService   = (*Catalog)(nil)
	_ domain.PromotionService = (*Catalog)(nil)
)
