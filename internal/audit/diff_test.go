package audit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/vladislavdragonenkov/pedidos/internal/audit"
	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

func TestDiffDiscountRendersAsPercentage(t *testing.T) {
	changes := audit.Diff(
		domain.Snapshot{domain.FieldDiscount: "0"},
		domain.Snapshot{domain.FieldDiscount: "10"},
	)

	require.Len(t, changes, 1)
	assert.Equal(t, audit.ChangeEntry{Campo: "Descuento", Anterior: "0%", Nuevo: "10%"}, changes[0])
}

func TestDiffOnlyFieldsDefinedInAfter(t *testing.T) {
	before := domain.Snapshot{
		domain.FieldDiscount: "5",
		domain.FieldStatus:   "pendiente",
	}
	after := domain.Snapshot{domain.FieldStatus: "pendiente"}

	assert.Empty(t, audit.Diff(before, after))
}

func TestDiffTrackedFieldsInOrder(t *testing.T) {
	before := domain.Snapshot{
		domain.FieldSupplier:  "3",
		domain.FieldStatus:    "pendiente",
		domain.FieldTotal:     "950.00",
		domain.FieldItemCount: "2",
	}
	after := domain.Snapshot{
		domain.FieldSupplier:         "4",
		domain.FieldStatus:           "recibido",
		domain.FieldTotal:            "1500.50",
		domain.FieldExpectedDelivery: "2024-03-20T15:00:00Z",
		domain.FieldItemCount:        "2",
	}

	a := audit.New(audit.NewFormatter(audit.WithLanguage(language.AmericanEnglish)))
	changes := a.Diff(before, after)

	require.Len(t, changes, 4)
	assert.Equal(t, audit.ChangeEntry{Campo: "Proveedor", Anterior: "3", Nuevo: "4"}, changes[0])
	assert.Equal(t, audit.ChangeEntry{Campo: "Fecha de entrega", Anterior: "-", Nuevo: "20/03/2024 15:00"}, changes[1])
	assert.Equal(t, audit.ChangeEntry{Campo: "Total", Anterior: "950.00", Nuevo: "$1,500.50"}, changes[2])
	assert.Equal(t, audit.ChangeEntry{Campo: "Estado", Anterior: "Pendiente", Nuevo: "Recibido"}, changes[3])
}

func TestDiffItemCountAddsMarker(t *testing.T) {
	changes := audit.Diff(
		domain.Snapshot{domain.FieldItemCount: "2", domain.FieldDiscount: "0"},
		domain.Snapshot{domain.FieldItemCount: "3", domain.FieldDiscount: "0"},
	)

	require.Len(t, changes, 2)
	assert.Equal(t, audit.ChangeEntry{Campo: audit.LabelItemCount, Anterior: "2", Nuevo: "3"}, changes[0])
	assert.Equal(t, audit.LabelItemsModified, changes[1].Nuevo)
}

func TestDiffGenericStatusFallback(t *testing.T) {
	before := domain.Snapshot{domain.FieldGenericStatus: "pendiente", domain.FieldDiscount: "0"}
	after := domain.Snapshot{domain.FieldGenericStatus: "cancelado", domain.FieldDiscount: "0"}

	changes := audit.Diff(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, audit.ChangeEntry{Campo: "Estado", Anterior: "Pendiente", Nuevo: "Cancelado"}, changes[0])

	// При изменении отслеживаемого поля общий статус не выводится.
	after[domain.FieldDiscount] = "15"
	changes = audit.Diff(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Descuento", changes[0].Campo)
}

func TestFormatterValue(t *testing.T) {
	f := audit.NewFormatter(
		audit.WithLanguage(language.AmericanEnglish),
		audit.WithLocation(time.FixedZone("UTC-3", -3*60*60)),
	)

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "", want: "-"},
		{raw: "12.5", want: "12.5%"},
		{raw: "99", want: "99%"},
		{raw: "150", want: "150"},
		{raw: "2500.00", want: "$2,500.00"},
		{raw: "-1200.75", want: "-$1,200.75"},
		{raw: "2024-03-15T10:30:00Z", want: "15/03/2024 07:30"},
		{raw: "pendiente", want: "Pendiente"},
		{raw: "ñandú", want: "Ñandú"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Value(tt.raw))
		})
	}
}

func TestHistoryKeepsOrderAndReason(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	records := []domain.ModificationRecord{
		{
			ID: 1, OrderID: 7, At: at, Actor: domain.Actor{ID: 2, Name: "ana"}, Reason: "proveedor pidió descuento",
			Before: domain.Snapshot{domain.FieldDiscount: "0"},
			After:  domain.Snapshot{domain.FieldDiscount: "10"},
		},
		{
			ID: 2, OrderID: 7, At: at.Add(time.Hour), Actor: domain.Actor{ID: 2, Name: "ana"}, Reason: "sin cambios",
			Before: domain.Snapshot{domain.FieldDiscount: "10"},
			After:  domain.Snapshot{domain.FieldDiscount: "10"},
		},
	}

	history := audit.New(nil).History(records)
	require.Len(t, history, 2)
	assert.Equal(t, "proveedor pidió descuento", history[0].Reason)
	require.Len(t, history[0].Changes, 1)
	assert.Equal(t, "10%", history[0].Changes[0].Nuevo)
	assert.Empty(t, history[1].Changes)
	assert.Equal(t, int64(2), history[1].ID)
}
