package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// IDKind различает временные (сессионные) и постоянные идентификаторы.
type IDKind uint8

const (
	// IDNone — идентификатор не задан.
	IDNone IDKind = iota
	// IDTemporary — локальный токен, уникальный только в пределах сессии редактирования.
	IDTemporary
	// IDPermanent — числовой идентификатор, выданный хранилищем.
	IDPermanent
)

const temporaryPrefix = "tmp:"

// ID — tagged union: Temporary(token) | Permanent(number).
// Все поиски строк и черновиков ветвятся по тегу, а не по типу значения.
type ID struct {
	kind  IDKind
	token string
	num   int64
}

// TemporaryID создаёт временный идентификатор из токена.
func TemporaryID(token string) ID {
	token = strings.TrimPrefix(strings.TrimSpace(token), temporaryPrefix)
	if token == "" {
		return ID{}
	}
	return ID{kind: IDTemporary, token: token}
}

// NewTemporaryID выпускает новый уникальный временный идентификатор.
func NewTemporaryID() ID {
	return ID{kind: IDTemporary, token: uuid.NewString()}
}

// PermanentID создаёт постоянный идентификатор. Значения <= 0 дают пустой ID.
func PermanentID(num int64) ID {
	if num <= 0 {
		return ID{}
	}
	return ID{kind: IDPermanent, num: num}
}

// Kind возвращает тег идентификатора.
func (id ID) Kind() IDKind { return id.kind }

// IsZero сообщает, что идентификатор не задан.
func (id ID) IsZero() bool { return id.kind == IDNone }

// IsTemporary сообщает, что идентификатор временный.
func (id ID) IsTemporary() bool { return id.kind == IDTemporary }

// Permanent возвращает числовое значение постоянного идентификатора.
func (id ID) Permanent() (int64, bool) {
	if id.kind != IDPermanent {
		return 0, false
	}
	return id.num, true
}

// Token возвращает токен временного идентификатора.
func (id ID) Token() string {
	if id.kind != IDTemporary {
		return ""
	}
	return id.token
}

func (id ID) String() string {
	switch id.kind {
	case IDTemporary:
		return temporaryPrefix + id.token
	case IDPermanent:
		return strconv.FormatInt(id.num, 10)
	default:
		return ""
	}
}

// ParseID разбирает строковое представление: "tmp:<token>" или число.
func ParseID(raw string) (ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ID{}, nil
	}
	if strings.HasPrefix(raw, temporaryPrefix) {
		return TemporaryID(raw), nil
	}
	num, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || num <= 0 {
		return ID{}, fmt.Errorf("invalid id %q", raw)
	}
	return PermanentID(num), nil
}

// MarshalJSON кодирует постоянный ID числом, временный строкой "tmp:<token>", пустой как null.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case IDPermanent:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	case IDTemporary:
		return json.Marshal(id.String())
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON выполняет обратное преобразование к MarshalJSON.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseID(raw)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	num, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = PermanentID(num)
	return nil
}
