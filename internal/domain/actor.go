package domain

import "strings"

// Actor — пользователь, от имени которого выполняется операция.
// Передаётся явно в Submit, Receive и UpdateOrder вместо чтения из окружения.
type Actor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IsZero сообщает, что пользователь не указан.
func (a Actor) IsZero() bool { return a.ID <= 0 && strings.TrimSpace(a.Name) == "" }

// EditMeta — метаданные редактирования заказа для журнала изменений.
type EditMeta struct {
	Actor  Actor  `json:"actor"`
	Reason string `json:"reason"`

	// ExpectedVersion — версия, с которой начиналось редактирование; 0 отключает проверку.
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}
