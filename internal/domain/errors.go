package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation — класс ошибок ввода, исправимых пользователем.
	ErrValidation = errors.New("validation failed")
	// ErrConflict — класс ошибок конкурентного изменения (например, черновик уже продвинут).
	ErrConflict = errors.New("conflict")
	// ErrTransport — класс ошибок внешних сервисов (недоступны или вернули мусор).
	ErrTransport = errors.New("transport error")

	// Ошибка отсутствующего поставщика.
	ErrSupplierRequired = errors.New("supplier is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("select supplier and at least one product or variant")
	// Ошибка отрицательной суммы, скидки или стоимости доставки.
	ErrAmountNegative = errors.New("amount must be non-negative")
	// Ошибка при некорректном количестве (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка строки товара с вариантами без выбранного варианта.
	ErrVariantRequired = errors.New("variant must be selected for product with variants")
	// Ошибка временного идентификатора там, где допустим только постоянный.
	ErrTemporaryReference = errors.New("temporary id cannot be persisted")
	// Ошибка черновика товара, у которого одновременно плоские qty/price и варианты.
	ErrDraftShapeInvalid = errors.New("draft product must carry either flat quantity/price or variants")
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrLineNotFound возвращается, если строка не найдена в сессии или заказе.
	ErrLineNotFound = errors.New("line not found")
	// ErrDraftNotFound возвращается для неизвестного индекса или ID черновика.
	ErrDraftNotFound = errors.New("draft not found")
	// ErrProductNotFound возвращается каталогом для неизвестного товара.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidState — действие нарушает жизненный цикл заказа.
	ErrInvalidState = errors.New("invalid order state transition")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrAlreadyPromoted — сервис регистрации сообщил, что черновик уже продвинут другой сессией.
	ErrAlreadyPromoted = errors.New("draft already promoted")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// FieldError — замечание к конкретному полю формы.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationError собирает все замечания сразу, а не останавливается на первом.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is позволяет сравнивать через errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add добавляет замечание к полю.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// AddError добавляет замечание из доменной ошибки.
func (e *ValidationError) AddError(field string, err error) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: err.Error()})
}

// Empty сообщает, что замечаний нет.
func (e *ValidationError) Empty() bool { return e == nil || len(e.Fields) == 0 }

// OrNil возвращает nil, если замечаний нет, иначе саму ошибку.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

// ConflictError описывает конфликт с параллельной сессией; автоматически не повторяется.
type ConflictError struct {
	Op  string
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict: %v", e.Op, e.Err)
}

// Unwrap возвращает исходную причину.
func (e *ConflictError) Unwrap() error { return e.Err }

// Is позволяет сравнивать через errors.Is(err, ErrConflict).
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransportError сохраняет исходную причину сбоя внешнего сервиса.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap возвращает исходную причину.
func (e *TransportError) Unwrap() error { return e.Err }

// Is позволяет сравнивать через errors.Is(err, ErrTransport).
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// WrapRemote классифицирует ошибку внешнего вызова: доменные ошибки пропускаются как есть,
// конфликты версий и повторное продвижение становятся ConflictError, остальное в TransportError.
func WrapRemote(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict), errors.Is(err, ErrTransport):
		return err
	case errors.Is(err, ErrOrderVersionConflict), errors.Is(err, ErrAlreadyPromoted):
		return &ConflictError{Op: op, Err: err}
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrProductNotFound), errors.Is(err, ErrInvalidState):
		return err
	default:
		return &TransportError{Op: op, Err: err}
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict проверяет, является ли ошибка конфликтом.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransport проверяет, является ли ошибка сбоем внешнего сервиса.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
