package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

func TestNewProcurementMetrics(t *testing.T) {
	m := NewProcurementMetricsWithRegisterer(prometheus.NewRegistry())

	if m.submits == nil || m.submitDuration == nil {
		t.Fatal("submit collectors should not be nil")
	}
	if m.receptions == nil || m.receptionDuration == nil || m.receptionsActive == nil {
		t.Fatal("reception collectors should not be nil")
	}
	if m.promotions == nil || m.lookupsSuperseded == nil {
		t.Fatal("promotion/lookup collectors should not be nil")
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewProcurementMetricsWithRegisterer(reg)
	second := NewProcurementMetricsWithRegisterer(reg)

	first.RecordLookupSuperseded()
	second.RecordLookupSuperseded()

	if got := counterValue(t, first.lookupsSuperseded); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestRecordSubmitByOutcome(t *testing.T) {
	m := NewProcurementMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordSubmit("create", nil, 10*time.Millisecond)
	m.RecordSubmit("create", &domain.ValidationError{}, time.Millisecond)
	m.RecordSubmit("edit", &domain.TransportError{Op: "updateOrder", Err: errors.New("boom")}, time.Millisecond)

	if got := counterValue(t, m.submits.WithLabelValues("create", OutcomeOK)); got != 1 {
		t.Fatalf("create/ok = %v, want 1", got)
	}
	if got := counterValue(t, m.submits.WithLabelValues("create", OutcomeValidation)); got != 1 {
		t.Fatalf("create/validation = %v, want 1", got)
	}
	if got := counterValue(t, m.submits.WithLabelValues("edit", OutcomeTransport)); got != 1 {
		t.Fatalf("edit/transport = %v, want 1", got)
	}
}

func TestReceptionInFlightGauge(t *testing.T) {
	m := NewProcurementMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordReceptionStarted()
	m.RecordReceptionStarted()
	m.RecordReceptionFinished(fmt.Errorf("load: %w", domain.ErrInvalidState), time.Millisecond)

	metric := &dto.Metric{}
	if err := m.receptionsActive.Write(metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != 1 {
		t.Fatalf("in-flight = %v, want 1", got)
	}
	if got := counterValue(t, m.receptions.WithLabelValues(OutcomeState)); got != 1 {
		t.Fatalf("invalid_state receptions = %v, want 1", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *ProcurementMetrics
	m.RecordSubmit("create", nil, time.Second)
	m.RecordReceptionStarted()
	m.RecordReceptionFinished(nil, time.Second)
	m.RecordPromotion(domain.ItemDraftVariant, nil)
	m.RecordLookupSuperseded()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}
