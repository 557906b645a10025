package domain

// ItemKind — дискриминант замкнутого набора позиций заказа.
type ItemKind uint8

const (
	// ItemRegistered — строка товара без вариантов.
	ItemRegistered ItemKind = iota + 1
	// ItemRegisteredVariant — строка товара с вариантами (вклад даёт только выбранный вариант).
	ItemRegisteredVariant
	// ItemDraftVariant — новый вариант зарегистрированного товара.
	ItemDraftVariant
	// ItemDraftProduct — новый товар.
	ItemDraftProduct
)

func (k ItemKind) String() string {
	switch k {
	case ItemRegistered:
		return "registered"
	case ItemRegisteredVariant:
		return "registered_variant"
	case ItemDraftVariant:
		return "variante_borrador"
	case ItemDraftProduct:
		return "producto_borrador"
	default:
		return "unknown"
	}
}

// Item — позиция заказа. Реализации ограничены пакетом domain.
type Item interface {
	Kind() ItemKind
	isItem()
}

// Kind для строки зависит от того, есть ли у товара зарегистрированные варианты.
func (l RegisteredLine) Kind() ItemKind {
	if l.Product.HasVariants {
		return ItemRegisteredVariant
	}
	return ItemRegistered
}

func (RegisteredLine) isItem() {}

// Kind реализует Item.
func (DraftVariant) Kind() ItemKind { return ItemDraftVariant }

func (DraftVariant) isItem() {}

// Kind реализует Item.
func (DraftProduct) Kind() ItemKind { return ItemDraftProduct }

func (DraftProduct) isItem() {}
