package composer

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
)

// ErrSuperseded возвращается поиску, который был вытеснен более новым вводом.
// Его результат отбрасывается.
var ErrSuperseded = errors.New("catalog lookup superseded")

const (
	defaultQuietPeriod  = 300 * time.Millisecond
	defaultFetchTimeout = 5 * time.Second
)

// LookupOption настраивает поиск.
type LookupOption func(*Lookup)

// WithQuietPeriod задаёт паузу ввода перед запросом.
func WithQuietPeriod(d time.Duration) LookupOption {
	return func(l *Lookup) {
		if d >= 0 {
			l.quiet = d
		}
	}
}

// WithFetchTimeout ограничивает время одного запроса к каталогу.
func WithFetchTimeout(d time.Duration) LookupOption {
	return func(l *Lookup) {
		if d > 0 {
			l.fetchTimeout = d
		}
	}
}

// WithSharedFetches объединяет одинаковые запросы разных сессий в один.
func WithSharedFetches(g *FetchGroup) LookupOption {
	return func(l *Lookup) {
		if g != nil {
			l.fetches = g
		}
	}
}

// WithLookupLogger задаёт логгер.
func WithLookupLogger(logger *log.Entry) LookupOption {
	return func(l *Lookup) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLookupMetrics включает учёт вытесненных запросов.
func WithLookupMetrics(m *metrics.ProcurementMetrics) LookupOption {
	return func(l *Lookup) { l.metrics = m }
}

// Lookup — поиск товаров по мере ввода с подавлением дребезга.
// Новый вызов Search вытесняет ожидающий или выполняющийся предыдущий
// и отменяет его запрос к каталогу, если тот больше никому не нужен.
type Lookup struct {
	catalog      domain.CatalogService
	fetches      *FetchGroup
	quiet        time.Duration
	fetchTimeout time.Duration
	logger       *log.Entry
	metrics      *metrics.ProcurementMetrics

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewLookup создаёт поиск поверх каталога.
func NewLookup(catalog domain.CatalogService, opts ...LookupOption) *Lookup {
	l := &Lookup{
		catalog:      catalog,
		quiet:        defaultQuietPeriod,
		fetchTimeout: defaultFetchTimeout,
		logger:       log.New().WithField("component", "catalog-lookup"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Search ждёт паузу ввода и ищет товары. Если за это время пришёл новый вызов,
// возвращает ErrSuperseded и никогда не отдаёт устаревший результат.
func (l *Lookup) Search(ctx context.Context, term string, categoryID *int64) ([]domain.Product, error) {
	term = strings.TrimSpace(term)
	callCtx, seq := l.begin(ctx)
	defer l.finish(seq)

	if term == "" {
		return nil, nil
	}

	timer := time.NewTimer(l.quiet)
	defer timer.Stop()
	select {
	case <-callCtx.Done():
		return nil, l.abandoned(ctx, seq)
	case <-timer.C:
	}

	resultCh, leave := l.fetch(ctx, callCtx, term, categoryID)
	defer leave()

	select {
	case <-callCtx.Done():
		return nil, l.abandoned(ctx, seq)
	case res := <-resultCh:
		if l.superseded(seq) {
			l.metrics.RecordLookupSuperseded()
			return nil, ErrSuperseded
		}
		if res.Err != nil {
			err := domain.WrapRemote("findByName", res.Err)
			l.logger.WithError(err).WithField("term", term).Warn("catalog lookup failed")
			return nil, err
		}
		products, _ := res.Val.([]domain.Product)
		out := make([]domain.Product, len(products))
		copy(out, products)
		return out, nil
	}
}

// fetch запускает запрос к каталогу. Без общей группы запрос живёт в callCtx
// и отменяется вместе с вытесненным поиском.
func (l *Lookup) fetch(ctx, callCtx context.Context, term string, categoryID *int64) (<-chan singleflight.Result, func()) {
	if l.fetches != nil {
		return l.fetches.join(ctx, lookupKey(term, categoryID), l.fetchTimeout, func(fetchCtx context.Context) (interface{}, error) {
			return l.catalog.FindByName(fetchCtx, term, categoryID)
		})
	}

	resultCh := make(chan singleflight.Result, 1)
	go func() {
		fetchCtx, cancel := context.WithTimeout(callCtx, l.fetchTimeout)
		defer cancel()
		products, err := l.catalog.FindByName(fetchCtx, term, categoryID)
		resultCh <- singleflight.Result{Val: products, Err: err}
	}()
	return resultCh, func() {}
}

func (l *Lookup) begin(ctx context.Context) (context.Context, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	callCtx, cancel := context.WithCancel(ctx)
	l.seq++
	l.cancel = cancel
	return callCtx, l.seq
}

func (l *Lookup) finish(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq == seq && l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Lookup) superseded(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq != seq
}

func (l *Lookup) abandoned(parent context.Context, seq uint64) error {
	if l.superseded(seq) {
		l.metrics.RecordLookupSuperseded()
		return ErrSuperseded
	}
	return parent.Err()
}

func lookupKey(term string, categoryID *int64) string {
	key := strings.ToLower(term)
	if categoryID != nil {
		key += "|" + strconv.FormatInt(*categoryID, 10)
	}
	return key
}
