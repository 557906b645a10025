// Package composer хранит рабочую копию заказа поставщику во время составления или редактирования.
package composer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
	"github.com/vladislavdragonenkov/pedidos/internal/pricing"
)

const (
	modeCreate = "create"
	modeEdit   = "edit"
)

// LineDetails — правка строки; nil-поля не меняются.
type LineDetails struct {
	VariantID *domain.ID
	Quantity  *int
	UnitCost  *decimal.Decimal
}

// DraftProductInput — начальные данные черновика нового товара.
type DraftProductInput struct {
	Name            string
	CategoryID      *int64
	Brand           string
	Quantity        int
	UnitPrice       decimal.Decimal
	AttributeSchema []string
	Variants        []domain.DraftSubVariant
}

// DraftProductPatch — правка черновика товара; nil-поля не меняются.
type DraftProductPatch struct {
	Name            *string
	CategoryID      *int64
	Brand           *string
	Quantity        *int
	UnitPrice       *decimal.Decimal
	AttributeSchema []string
	Variants        []domain.DraftSubVariant
	// ClearVariants удаляет вложенные варианты, превращая черновик в плоский.
	ClearVariants bool
}

type lineState struct {
	line domain.RegisteredLine
	// variants — зарегистрированные варианты товара; nil, если деталь не загружалась.
	variants []domain.Variant
	// placeholders — временные варианты, заведённые на строке.
	placeholders map[string]map[string]string
}

type state struct {
	supplier      domain.Supplier
	discountPct   decimal.Decimal
	shippingCost  decimal.Decimal
	expected      *time.Time
	lines         []lineState
	draftVariants []domain.DraftVariant
	draftProducts []domain.DraftProduct
	reason        string
}

// Option настраивает сессию.
type Option func(*Session)

// WithLogger задаёт логгер сессии.
func WithLogger(logger *log.Entry) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает метрики отправки.
func WithMetrics(m *metrics.ProcurementMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLineIDGenerator подменяет генератор идентификаторов строк.
func WithLineIDGenerator(gen func() string) Option {
	return func(s *Session) {
		if gen != nil {
			s.newLineID = gen
		}
	}
}

// Session — рабочая копия одного заказа. Операции синхронны и не перемежаются.
type Session struct {
	mu sync.Mutex

	catalog domain.CatalogService
	store   domain.OrderStore
	logger  *log.Entry
	metrics *metrics.ProcurementMetrics

	newLineID func() string

	// orderID == 0 для нового заказа.
	orderID int64
	version int64

	state state
}

// New открывает сессию составления нового заказа.
func New(catalog domain.CatalogService, store domain.OrderStore, opts ...Option) *Session {
	s := &Session{
		catalog:   catalog,
		store:     store,
		logger:    log.New().WithField("component", "composer"),
		newLineID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = emptyState()
	return s
}

// Edit открывает сессию редактирования сохранённого заказа. Редактировать можно только pending.
func Edit(ctx context.Context, catalog domain.CatalogService, store domain.OrderStore, orderID int64, opts ...Option) (*Session, error) {
	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, domain.WrapRemote("getOrder", err)
	}
	if order.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("edit order %d in status %s: %w", orderID, order.Status, domain.ErrInvalidState)
	}
	s := New(catalog, store, opts...)
	s.seed(order)
	return s, nil
}

func emptyState() state {
	return state{discountPct: decimal.Zero, shippingCost: decimal.Zero}
}

func (s *Session) seed(order domain.Order) {
	order = order.Clone()
	s.orderID = order.ID
	s.version = order.Version
	st := state{
		supplier:      order.Supplier,
		discountPct:   order.DiscountPct,
		shippingCost:  order.ShippingCost,
		expected:      order.ExpectedDelivery,
		draftVariants: order.DraftVariants,
		draftProducts: order.DraftProducts,
	}
	for _, line := range order.Lines {
		st.lines = append(st.lines, lineState{line: line})
	}
	s.state = st
}

// OrderID возвращает идентификатор редактируемого заказа (0 для нового).
func (s *Session) OrderID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

// SelectSupplier выбирает поставщика.
func (s *Session) SelectSupplier(supplier domain.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.supplier = supplier
}

// SetDiscount задаёт скидку в процентах. Значение проверяется при отправке.
func (s *Session) SetDiscount(pct decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.discountPct = pct
}

// SetShippingCost задаёт стоимость доставки.
func (s *Session) SetShippingCost(cost decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.shippingCost = cost
}

// SetExpectedDelivery задаёт ожидаемую дату поставки; nil убирает её.
func (s *Session) SetExpectedDelivery(at *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at == nil {
		s.state.expected = nil
		return
	}
	v := *at
	s.state.expected = &v
}

// SetReason задаёт причину правки для журнала изменений.
func (s *Session) SetReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.reason = reason
}

// AddCatalogProduct загружает деталь товара из каталога и добавляет строку с новым идентификатором.
// При ошибке каталога состояние не меняется.
func (s *Session) AddCatalogProduct(ctx context.Context, productID int64) (string, error) {
	detail, err := s.catalog.GetStockDetail(ctx, productID)
	if err != nil {
		err = domain.WrapRemote("getStockDetail", err)
		s.logger.WithError(err).WithField("product_id", productID).Warn("stock detail lookup failed")
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line := domain.RegisteredLine{
		LineID:   s.newLineID(),
		Product:  detail.Product.Ref(),
		Quantity: 1,
		UnitCost: detail.Product.Cost,
	}
	if line.Product.HasVariants {
		// Для товара с вариантами цена и количество появляются с выбором варианта.
		line.Quantity = 0
		line.UnitCost = decimal.Zero
	}
	variants := append([]domain.Variant(nil), detail.Variants...)
	if variants == nil {
		variants = []domain.Variant{}
	}
	s.state.lines = append(s.state.lines, lineState{line: line, variants: variants})
	return line.LineID, nil
}

// SetLineDetails меняет вариант, количество или цену строки.
func (s *Session) SetLineDetails(lineID string, details LineDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.lineIndex(lineID)
	if idx < 0 {
		return fmt.Errorf("line %q: %w", lineID, domain.ErrLineNotFound)
	}
	ls := s.state.lines[idx]
	line := ls.line

	if details.VariantID != nil {
		selected := *details.VariantID
		switch {
		case selected.IsZero():
			line.VariantID = domain.ID{}
			line.VariantAttributes = nil
		case !line.Product.HasVariants:
			verr := &domain.ValidationError{}
			verr.Add("lines."+lineID+".variant", "product %q has no variants", line.Product.Name)
			return verr
		case selected.IsTemporary():
			attrs, ok := ls.placeholders[selected.Token()]
			if !ok {
				verr := &domain.ValidationError{}
				verr.Add("lines."+lineID+".variant", "unknown variant placeholder %s", selected)
				return verr
			}
			line.VariantID = selected
			line.VariantAttributes = domain.CloneAttributes(attrs)
		default:
			variant, ok := ls.findVariant(selected)
			if !ok {
				verr := &domain.ValidationError{}
				verr.Add("lines."+lineID+".variant", "variant %s does not belong to product %q", selected, line.Product.Name)
				return verr
			}
			line.VariantID = selected
			line.VariantAttributes = domain.CloneAttributes(variant.Attributes)
			if details.UnitCost == nil && line.UnitCost.IsZero() {
				line.UnitCost = variant.Cost
			}
			if details.Quantity == nil && line.Quantity == 0 {
				line.Quantity = 1
			}
		}
	}
	if details.Quantity != nil {
		line.Quantity = *details.Quantity
	}
	if details.UnitCost != nil {
		line.UnitCost = *details.UnitCost
	}

	ls.line = line
	s.state.lines[idx] = ls
	return nil
}

// DefineLineVariant заводит на строке новый вариант-плейсхолдер и выбирает его.
// При отправке такая строка превращается в черновик варианта.
func (s *Session) DefineLineVariant(lineID string, attrs map[string]string) (domain.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.lineIndex(lineID)
	if idx < 0 {
		return domain.ID{}, fmt.Errorf("line %q: %w", lineID, domain.ErrLineNotFound)
	}
	ls := s.state.lines[idx]
	if !ls.line.Product.HasVariants || ls.line.Product.ID <= 0 {
		verr := &domain.ValidationError{}
		verr.Add("lines."+lineID+".variant", "product %q does not accept variants", ls.line.Product.Name)
		return domain.ID{}, verr
	}
	if len(attrs) == 0 {
		verr := &domain.ValidationError{}
		verr.Add("lines."+lineID+".attributes", "variant attributes are required")
		return domain.ID{}, verr
	}

	id := domain.NewTemporaryID()
	placeholders := make(map[string]map[string]string, len(ls.placeholders)+1)
	for k, v := range ls.placeholders {
		placeholders[k] = v
	}
	placeholders[id.Token()] = domain.CloneAttributes(attrs)
	ls.placeholders = placeholders
	ls.line.VariantID = id
	ls.line.VariantAttributes = domain.CloneAttributes(attrs)
	if ls.line.Quantity == 0 {
		ls.line.Quantity = 1
	}
	s.state.lines[idx] = ls
	return id, nil
}

// RemoveLine удаляет строку. Её идентификатор больше не выдаётся.
func (s *Session) RemoveLine(lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.lineIndex(lineID)
	if idx < 0 {
		return fmt.Errorf("line %q: %w", lineID, domain.ErrLineNotFound)
	}
	s.state.lines = append(s.state.lines[:idx:idx], s.state.lines[idx+1:]...)
	return nil
}

// AddDraftProduct добавляет черновик нового товара и возвращает его индекс.
func (s *Session) AddDraftProduct(in DraftProductInput) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := domain.DraftProduct{
		ID:              domain.NewTemporaryID(),
		Name:            in.Name,
		Brand:           in.Brand,
		Quantity:        in.Quantity,
		UnitPrice:       in.UnitPrice,
		AttributeSchema: append([]string(nil), in.AttributeSchema...),
		Variants:        cloneSubVariants(in.Variants),
	}
	if in.CategoryID != nil {
		v := *in.CategoryID
		draft.CategoryID = &v
	}
	s.state.draftProducts = append(s.state.draftProducts, draft)
	return len(s.state.draftProducts) - 1
}

// UpdateDraftProduct применяет правку к черновику товара по индексу.
func (s *Session) UpdateDraftProduct(idx int, patch DraftProductPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.state.draftProducts) {
		return fmt.Errorf("draft product %d: %w", idx, domain.ErrDraftNotFound)
	}
	draft := s.state.draftProducts[idx]
	if patch.Name != nil {
		draft.Name = *patch.Name
	}
	if patch.CategoryID != nil {
		v := *patch.CategoryID
		draft.CategoryID = &v
	}
	if patch.Brand != nil {
		draft.Brand = *patch.Brand
	}
	if patch.Quantity != nil {
		draft.Quantity = *patch.Quantity
	}
	if patch.UnitPrice != nil {
		draft.UnitPrice = *patch.UnitPrice
	}
	if patch.AttributeSchema != nil {
		draft.AttributeSchema = append([]string(nil), patch.AttributeSchema...)
	}
	switch {
	case patch.ClearVariants:
		draft.Variants = nil
	case patch.Variants != nil:
		draft.Variants = cloneSubVariants(patch.Variants)
	}

	drafts := append([]domain.DraftProduct(nil), s.state.draftProducts...)
	drafts[idx] = draft
	s.state.draftProducts = drafts
	return nil
}

// RemoveDraftProduct удаляет черновик товара по индексу.
func (s *Session) RemoveDraftProduct(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.state.draftProducts) {
		return fmt.Errorf("draft product %d: %w", idx, domain.ErrDraftNotFound)
	}
	s.state.draftProducts = append(s.state.draftProducts[:idx:idx], s.state.draftProducts[idx+1:]...)
	return nil
}

// AddDraftVariant добавляет черновик нового варианта зарегистрированного товара.
func (s *Session) AddDraftVariant(product domain.ProductRef, attrs map[string]string, qty int, price decimal.Decimal) (domain.ID, error) {
	if product.ID <= 0 {
		verr := &domain.ValidationError{}
		verr.Add("draft_variants.product", "owning product must be registered")
		return domain.ID{}, verr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := domain.DraftVariant{
		ID:          domain.NewTemporaryID(),
		ProductID:   product.ID,
		ProductName: product.Name,
		Attributes:  domain.CloneAttributes(attrs),
		Quantity:    qty,
		UnitPrice:   price,
	}
	s.state.draftVariants = append(s.state.draftVariants, draft)
	return draft.ID, nil
}

// RemoveDraftVariant удаляет черновик варианта по индексу.
func (s *Session) RemoveDraftVariant(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.state.draftVariants) {
		return fmt.Errorf("draft variant %d: %w", idx, domain.ErrDraftNotFound)
	}
	s.state.draftVariants = append(s.state.draftVariants[:idx:idx], s.state.draftVariants[idx+1:]...)
	return nil
}

// Lines возвращает копию строк сессии.
func (s *Session) Lines() []domain.RegisteredLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RegisteredLine, 0, len(s.state.lines))
	for _, ls := range s.state.lines {
		line := ls.line
		line.VariantAttributes = domain.CloneAttributes(line.VariantAttributes)
		out = append(out, line)
	}
	return out
}

// DraftVariants возвращает копию черновиков вариантов.
func (s *Session) DraftVariants() []domain.DraftVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotOrder().DraftVariants
}

// DraftProducts возвращает копию черновиков товаров.
func (s *Session) DraftProducts() []domain.DraftProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotOrder().DraftProducts
}

// Totals считает суммы текущего состояния для отображения.
func (s *Session) Totals() pricing.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.ForOrder(s.snapshotOrder())
}

// Discard отбрасывает несохранённые строки, черновики и временные идентификаторы.
// Сохранённый заказ не затрагивается.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = emptyState()
	s.orderID = 0
	s.version = 0
}

// Submit проверяет состояние и сохраняет заказ одним вызовом хранилища.
// Ошибка валидации или хранилища оставляет сессию без изменений; успех сбрасывает её.
func (s *Session) Submit(ctx context.Context, actor domain.Actor) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	mode := modeCreate
	if s.orderID != 0 {
		mode = modeEdit
	}
	logger := s.logger.WithFields(log.Fields{"mode": mode, "order_id": s.orderID, "actor_id": actor.ID})

	payload, err := BuildPayload(s.snapshotOrder())
	if err != nil {
		s.metrics.RecordSubmit(mode, err, time.Since(start))
		logger.WithError(err).Debug("order submission rejected")
		return domain.Order{}, err
	}

	var saved domain.Order
	if mode == modeCreate {
		saved, err = s.store.CreateOrder(ctx, payload, actor)
		err = domain.WrapRemote("createOrder", err)
	} else {
		meta := domain.EditMeta{Actor: actor, Reason: s.state.reason, ExpectedVersion: s.version}
		saved, err = s.store.UpdateOrder(ctx, s.orderID, payload, meta)
		err = domain.WrapRemote("updateOrder", err)
	}
	s.metrics.RecordSubmit(mode, err, time.Since(start))
	if err != nil {
		logger.WithError(err).Warn("order submission failed")
		return domain.Order{}, err
	}

	logger.WithFields(log.Fields{
		"order_id": saved.ID,
		"total":    saved.Total.StringFixed(domain.MoneyPlaces),
	}).Info("order submitted")

	if mode == modeCreate {
		s.state = emptyState()
	} else {
		s.seed(saved)
	}
	return saved.Clone(), nil
}

// snapshotOrder собирает заказ из текущего состояния без побочных эффектов.
func (s *Session) snapshotOrder() domain.Order {
	order := domain.Order{
		ID:            s.orderID,
		Supplier:      s.state.supplier,
		DiscountPct:   s.state.discountPct,
		ShippingCost:  s.state.shippingCost,
		Status:        domain.OrderStatusPending,
		DraftVariants: s.state.draftVariants,
		DraftProducts: s.state.draftProducts,
		Version:       s.version,
	}
	if s.state.expected != nil {
		v := *s.state.expected
		order.ExpectedDelivery = &v
	}
	for _, ls := range s.state.lines {
		order.Lines = append(order.Lines, ls.line)
	}
	return order.Clone()
}

func (s *Session) lineIndex(lineID string) int {
	for i, ls := range s.state.lines {
		if ls.line.LineID == lineID {
			return i
		}
	}
	return -1
}

func (ls lineState) findVariant(id domain.ID) (domain.Variant, bool) {
	num, ok := id.Permanent()
	if !ok {
		return domain.Variant{}, false
	}
	if ls.variants == nil {
		// Строка из сохранённого заказа: список вариантов не загружался.
		return domain.Variant{ID: num, ProductID: ls.line.Product.ID}, true
	}
	for _, v := range ls.variants {
		if v.ID == num {
			return v, true
		}
	}
	return domain.Variant{}, false
}

func cloneSubVariants(src []domain.DraftSubVariant) []domain.DraftSubVariant {
	if src == nil {
		return nil
	}
	dst := make([]domain.DraftSubVariant, len(src))
	for i, sv := range src {
		sv.Attributes = domain.CloneAttributes(sv.Attributes)
		dst[i] = sv
	}
	return dst
}
