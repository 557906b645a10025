package memory

import "github.com/vladislavdragonenkov/pedidos/internal/domain"

// Permissions — статический набор прав пользователя.
type Permissions map[string]bool

// NewPermissions создаёт набор из перечисленных прав.
func NewPermissions(names ...string) Permissions {
	p := make(Permissions, len(names))
	for _, name := range names {
		p[name] = true
	}
	return p
}

// HasPermission сообщает, выдано ли право.
func (p Permissions) HasPermission(name string) bool { return p[name] }

var _ domain.PermissionOracle = Permissions(nil)
