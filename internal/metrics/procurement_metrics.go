package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// Значения метки outcome.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation"
	OutcomeConflict   = "conflict"
	OutcomeTransport  = "transport"
	OutcomeState      = "invalid_state"
	OutcomeError      = "error"
)

// ProcurementMetrics содержит метрики составления, приёмки заказов и продвижения черновиков.
type ProcurementMetrics struct {
	// Отправки сессий составления/редактирования
	submits        *prometheus.CounterVec
	submitDuration *prometheus.HistogramVec

	// Приёмки
	receptions        *prometheus.CounterVec
	receptionDuration prometheus.Histogram
	receptionsActive  prometheus.Gauge

	// Продвижение черновиков
	promotions *prometheus.CounterVec

	// Поиск по каталогу
	lookupsSuperseded prometheus.Counter
}

// NewProcurementMetrics создаёт метрики в глобальном реестре Prometheus.
func NewProcurementMetrics() *ProcurementMetrics {
	return NewProcurementMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewProcurementMetricsWithRegisterer создаёт метрики в указанном реестре (удобно для тестов).
func NewProcurementMetricsWithRegisterer(registerer prometheus.Registerer) *ProcurementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ProcurementMetrics{
		submits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pedidos_composer_submit_total",
			Help: "Total number of order submissions by mode and outcome",
		}, []string{"mode", "outcome"}),
		submitDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pedidos_composer_submit_duration_seconds",
			Help:    "Duration of order submissions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"mode"}),
		receptions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pedidos_reception_total",
			Help: "Total number of order receptions by outcome",
		}, []string{"outcome"}),
		receptionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pedidos_reception_duration_seconds",
			Help:    "Duration of order receptions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		receptionsActive: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pedidos_receptions_in_flight",
			Help: "Number of receptions currently being processed",
		}),
		promotions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pedidos_draft_promotions_total",
			Help: "Total number of draft promotions by kind and outcome",
		}, []string{"kind", "outcome"}),
		lookupsSuperseded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pedidos_catalog_lookups_superseded_total",
			Help: "Total number of catalog lookups discarded because newer input arrived",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// Outcome классифицирует ошибку для метки outcome.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case domain.IsValidation(err):
		return OutcomeValidation
	case domain.IsConflict(err):
		return OutcomeConflict
	case domain.IsTransport(err):
		return OutcomeTransport
	case errors.Is(err, domain.ErrInvalidState):
		return OutcomeState
	default:
		return OutcomeError
	}
}

// RecordSubmit учитывает отправку сессии (mode: create или edit).
func (m *ProcurementMetrics) RecordSubmit(mode string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.submits.WithLabelValues(mode, Outcome(err)).Inc()
	m.submitDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordReceptionStarted увеличивает количество приёмок в работе.
func (m *ProcurementMetrics) RecordReceptionStarted() {
	if m == nil {
		return
	}
	m.receptionsActive.Inc()
}

// RecordReceptionFinished учитывает завершённую приёмку.
func (m *ProcurementMetrics) RecordReceptionFinished(err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.receptionsActive.Dec()
	m.receptions.WithLabelValues(Outcome(err)).Inc()
	m.receptionDuration.Observe(duration.Seconds())
}

// RecordPromotion учитывает попытку продвижения черновика.
func (m *ProcurementMetrics) RecordPromotion(kind domain.ItemKind, err error) {
	if m == nil {
		return
	}
	m.promotions.WithLabelValues(kind.String(), Outcome(err)).Inc()
}

// RecordLookupSuperseded учитывает отброшенный устаревший поиск.
func (m *ProcurementMetrics) RecordLookupSuperseded() {
	if m == nil {
		return
	}
	m.lookupsSuperseded.Inc()
}
