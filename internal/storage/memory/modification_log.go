package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// modificationLog хранит журнал изменений заказов в памяти; записи только добавляются.
type modificationLog struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64][]domain.ModificationRecord
}

func newModificationLog() *modificationLog {
	return &modificationLog{records: make(map[int64][]domain.ModificationRecord)}
}

// Append добавляет запись и выдаёт ей идентификатор.
func (l *modificationLog) Append(rec domain.ModificationRecord) domain.ModificationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	rec.ID = l.nextID
	rec.Before = rec.Before.Clone()
	rec.After = rec.After.Clone()
	l.records[rec.OrderID] = append(l.records[rec.OrderID], rec)

	sort.SliceStable(l.records[rec.OrderID], func(i, j int) bool {
		return l.records[rec.OrderID][i].At.Before(l.records[rec.OrderID][j].At)
	})
	return rec
}

// List возвращает копию журнала заказа в хронологическом порядке.
func (l *modificationLog) List(orderID int64) []domain.ModificationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := l.records[orderID]
	result := make([]domain.ModificationRecord, len(records))
	for i, rec := range records {
		rec.Before = rec.Before.Clone()
		rec.After = rec.After.Clone()
		result[i] = rec
	}
	return result
}
