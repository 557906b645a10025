// Package drafts продвигает черновики вариантов и товаров в постоянные записи каталога.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
)

// errMalformedResponse — сервис регистрации вернул неполный ответ.
var errMalformedResponse = errors.New("malformed promotion response")

// Option настраивает реестр.
type Option func(*Registry)

// WithLogger задаёт логгер реестра.
func WithLogger(logger *log.Entry) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics включает учёт продвижений.
func WithMetrics(m *metrics.ProcurementMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry продвигает черновики. Повторное продвижение того же черновика
// возвращает уже выданные постоянные идентификаторы и не обращается к сервису.
// Живёт столько же, сколько операция приёмки.
type Registry struct {
	promotions domain.PromotionService
	logger     *log.Entry
	metrics    *metrics.ProcurementMetrics
	inflight   singleflight.Group

	mu       sync.Mutex
	promoted map[string]domain.PromotionResult
}

// NewRegistry создаёт реестр поверх сервиса регистрации.
func NewRegistry(promotions domain.PromotionService, opts ...Option) *Registry {
	r := &Registry{
		promotions: promotions,
		logger:     log.New().WithField("component", "draft-registry"),
		promoted:   make(map[string]domain.PromotionResult),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Known возвращает результат, если черновик уже продвигался этим реестром.
func (r *Registry) Known(draftID domain.ID) (domain.PromotionResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.promoted[draftID.String()]
	return cloneResult(res), ok
}

// Promote продвигает черновик любого вида.
func (r *Registry) Promote(ctx context.Context, item domain.Item) (domain.PromotionResult, error) {
	switch v := item.(type) {
	case domain.DraftVariant:
		return r.PromoteVariant(ctx, v)
	case *domain.DraftVariant:
		if v != nil {
			return r.PromoteVariant(ctx, *v)
		}
	case domain.DraftProduct:
		return r.PromoteProduct(ctx, v)
	case *domain.DraftProduct:
		if v != nil {
			return r.PromoteProduct(ctx, *v)
		}
	case nil:
	default:
		verr := &domain.ValidationError{}
		verr.Add("draft", "item %T is not a draft", v)
		return domain.PromotionResult{}, verr
	}
	verr := &domain.ValidationError{}
	verr.Add("draft", "missing draft item")
	return domain.PromotionResult{}, verr
}

// PromoteVariant регистрирует новый вариант существующего товара.
func (r *Registry) PromoteVariant(ctx context.Context, dv domain.DraftVariant) (domain.PromotionResult, error) {
	if res, ok := r.Known(dv.ID); ok {
		return res, nil
	}
	if err := validateVariant(dv); err != nil {
		r.metrics.RecordPromotion(domain.ItemDraftVariant, err)
		return domain.PromotionResult{}, err
	}

	return r.once(ctx, dv.ID, domain.ItemDraftVariant, func(ctx context.Context) (domain.PromotionResult, error) {
		variantID, err := r.promotions.RegisterVariant(ctx, dv.ProductID, domain.VariantRegistration{
			Attributes: domain.CloneAttributes(dv.Attributes),
			UnitPrice:  dv.UnitPrice,
			Quantity:   dv.Quantity,
		})
		if err != nil {
			return domain.PromotionResult{}, domain.WrapRemote("registerVariant", err)
		}
		if variantID <= 0 {
			return domain.PromotionResult{}, &domain.TransportError{Op: "registerVariant", Err: errMalformedResponse}
		}
		return domain.PromotionResult{
			DraftID:    dv.ID,
			Kind:       domain.ItemDraftVariant,
			ProductID:  dv.ProductID,
			VariantIDs: []int64{variantID},
		}, nil
	})
}

// PromoteProduct регистрирует новый товар и по одному варианту на каждый вложенный вариант черновика.
func (r *Registry) PromoteProduct(ctx context.Context, dp domain.DraftProduct) (domain.PromotionResult, error) {
	if res, ok := r.Known(dp.ID); ok {
		return res, nil
	}
	if err := validateProduct(dp); err != nil {
		r.metrics.RecordPromotion(domain.ItemDraftProduct, err)
		return domain.PromotionResult{}, err
	}

	reg := domain.ProductRegistration{
		Name:            strings.TrimSpace(dp.Name),
		CategoryID:      dp.CategoryID,
		Brand:           dp.Brand,
		UnitPrice:       dp.UnitPrice,
		Quantity:        dp.Quantity,
		AttributeSchema: append([]string(nil), dp.AttributeSchema...),
	}
	if dp.HasVariants() {
		reg.UnitPrice = decimal.Zero
		reg.Quantity = 0
		for _, sv := range dp.Variants {
			reg.Variants = append(reg.Variants, domain.VariantRegistration{
				Attributes: domain.CloneAttributes(sv.Attributes),
				UnitPrice:  sv.UnitPrice,
				Quantity:   sv.Quantity,
			})
		}
	}

	return r.once(ctx, dp.ID, domain.ItemDraftProduct, func(ctx context.Context) (domain.PromotionResult, error) {
		resp, err := r.promotions.RegisterProduct(ctx, reg)
		if err != nil {
			return domain.PromotionResult{}, domain.WrapRemote("registerProduct", err)
		}
		if resp.ProductID <= 0 || len(resp.VariantIDs) != len(reg.Variants) {
			return domain.PromotionResult{}, &domain.TransportError{
				Op:  "registerProduct",
				Err: fmt.Errorf("%w: product %d with %d variant ids for %d variants", errMalformedResponse, resp.ProductID, len(resp.VariantIDs), len(reg.Variants)),
			}
		}
		return domain.PromotionResult{
			DraftID:    dp.ID,
			Kind:       domain.ItemDraftProduct,
			ProductID:  resp.ProductID,
			VariantIDs: append([]int64(nil), resp.VariantIDs...),
		}, nil
	})
}

// once выполняет регистрацию не более одного раза на черновик: параллельные вызовы
// ждут общего результата, успешный результат запоминается.
func (r *Registry) once(ctx context.Context, draftID domain.ID, kind domain.ItemKind, fn func(context.Context) (domain.PromotionResult, error)) (domain.PromotionResult, error) {
	key := draftID.String()
	v, err, _ := r.inflight.Do(key, func() (interface{}, error) {
		if res, ok := r.Known(draftID); ok {
			return res, nil
		}
		res, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.promoted[key] = res
		r.mu.Unlock()
		return res, nil
	})
	r.metrics.RecordPromotion(kind, err)

	logger := r.logger.WithFields(log.Fields{"draft_id": key, "kind": kind.String()})
	if err != nil {
		logger.WithError(err).Warn("draft promotion failed")
		return domain.PromotionResult{}, err
	}
	res := v.(domain.PromotionResult)
	logger.WithField("product_id", res.ProductID).Info("draft promoted")
	return cloneResult(res), nil
}

func cloneResult(res domain.PromotionResult) domain.PromotionResult {
	res.VariantIDs = append([]int64(nil), res.VariantIDs...)
	return res
}
