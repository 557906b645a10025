// Package audit строит читаемую историю изменений заказа из журнала снимков.
// Пакет только читает: журнал пишет хранилище заказов.
package audit

import (
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// Подписи синтетических записей.
const (
	LabelItemCount     = "Cantidad de productos"
	LabelItems         = "Productos"
	LabelItemsModified = "Productos modificados"
	LabelStatus        = "Estado"
)

// ChangeEntry — одно изменение поля в читаемом виде.
type ChangeEntry struct {
	Campo    string `json:"campo"`
	Anterior string `json:"anterior"`
	Nuevo    string `json:"nuevo"`
}

type trackedField struct {
	key   string
	label string
	// plain выводит значение без правил форматирования (идентификаторы).
	plain bool
}

// trackedFields — фиксированный набор полей в порядке вывода.
var trackedFields = []trackedField{
	{key: domain.FieldSupplier, label: "Proveedor", plain: true},
	{key: domain.FieldDiscount, label: "Descuento"},
	{key: domain.FieldShipping, label: "Costo de envío"},
	{key: domain.FieldExpectedDelivery, label: "Fecha de entrega"},
	{key: domain.FieldTotal, label: "Total"},
	{key: domain.FieldStatus, label: "Estado"},
	{key: domain.FieldReceivedAt, label: "Fecha de recepción"},
}

// HistoryEntry — запись журнала, готовая к показу.
type HistoryEntry struct {
	ID      int64         `json:"id"`
	At      time.Time     `json:"at"`
	Actor   domain.Actor  `json:"actor"`
	Reason  string        `json:"reason"`
	Changes []ChangeEntry `json:"changes"`
}

// Auditor сравнивает снимки заказа.
type Auditor struct {
	format *Formatter
}

// New создаёт аудитор. nil-форматтер заменяется форматтером по умолчанию.
func New(format *Formatter) *Auditor {
	if format == nil {
		format = NewFormatter()
	}
	return &Auditor{format: format}
}

var defaultAuditor = New(nil)

// Diff сравнивает снимки аудитором по умолчанию.
func Diff(before, after domain.Snapshot) []ChangeEntry {
	return defaultAuditor.Diff(before, after)
}

// Diff возвращает изменения отслеживаемых полей. Поле попадает в список,
// только если after его задаёт и отформатированное значение отличается.
func (a *Auditor) Diff(before, after domain.Snapshot) []ChangeEntry {
	var changes []ChangeEntry
	for _, field := range trackedFields {
		next, ok := after[field.key]
		if !ok {
			continue
		}
		prev := before[field.key]
		oldText, newText := a.render(field, prev), a.render(field, next)
		if oldText == newText {
			continue
		}
		changes = append(changes, ChangeEntry{Campo: field.label, Anterior: oldText, Nuevo: newText})
	}

	if next, ok := after[domain.FieldItemCount]; ok {
		prev := before[domain.FieldItemCount]
		if a.format.Count(prev) != a.format.Count(next) {
			changes = append(changes,
				ChangeEntry{Campo: LabelItemCount, Anterior: a.format.Count(prev), Nuevo: a.format.Count(next)},
				ChangeEntry{Campo: LabelItems, Anterior: "", Nuevo: LabelItemsModified},
			)
		}
	}

	if len(changes) == 0 {
		if next, ok := after[domain.FieldGenericStatus]; ok {
			prev := before[domain.FieldGenericStatus]
			if prev != next {
				changes = append(changes, ChangeEntry{
					Campo:    LabelStatus,
					Anterior: a.format.Value(prev),
					Nuevo:    a.format.Value(next),
				})
			}
		}
	}
	return changes
}

func (a *Auditor) render(field trackedField, raw string) string {
	if field.plain {
		if raw == "" {
			return emptyValue
		}
		return raw
	}
	return a.format.Value(raw)
}

// History переводит журнал в читаемые записи в исходном порядке.
// Записи без видимых изменений сохраняются: причина правки тоже история.
func (a *Auditor) History(records []domain.ModificationRecord) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, HistoryEntry{
			ID:      rec.ID,
			At:      rec.At,
			Actor:   rec.Actor,
			Reason:  rec.Reason,
			Changes: a.Diff(rec.Before, rec.After),
		})
	}
	return out
}
