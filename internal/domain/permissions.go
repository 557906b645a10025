package domain

// Имена разрешений, которые спрашиваются у PermissionOracle.
const (
	PermissionCreateOrder   = "pedidos.crear"
	PermissionEditOrder     = "pedidos.editar"
	PermissionReceiveOrder  = "pedidos.recibir"
	PermissionRegisterItems = "productos.crear"
	PermissionViewHistory   = "pedidos.historial"
)

// AllowedActions — набор операций, которые можно показать пользователю.
// Ядро само разрешения не проверяет.
type AllowedActions struct {
	CreateOrder   bool `json:"create_order"`
	EditOrder     bool `json:"edit_order"`
	ReceiveOrder  bool `json:"receive_order"`
	PromoteDrafts bool `json:"promote_drafts"`
	ViewHistory   bool `json:"view_history"`
}

// ResolveActions спрашивает у оракула разрешения. nil-оракул ничего не разрешает.
func ResolveActions(oracle PermissionOracle) AllowedActions {
	if oracle == nil {
		return AllowedActions{}
	}
	receive := oracle.HasPermission(PermissionReceiveOrder)
	return AllowedActions{
		CreateOrder:  oracle.HasPermission(PermissionCreateOrder),
		EditOrder:    oracle.HasPermission(PermissionEditOrder),
		ReceiveOrder: receive,
		// Продвигать черновики можно только в рамках приёмки.
		PromoteDrafts: receive && oracle.HasPermission(PermissionRegisterItems),
		ViewHistory:   oracle.HasPermission(PermissionViewHistory),
	}
}
