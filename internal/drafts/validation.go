package drafts

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

type variantDraft struct {
	DraftID    string            `json:"draft_id" validate:"required"`
	ProductID  int64             `json:"product_id" validate:"gt=0"`
	Attributes map[string]string `json:"attributes" validate:"required,min=1,dive,keys,required,endkeys,required"`
	UnitPrice  decimal.Decimal   `json:"unit_price" validate:"gt=0"`
	Quantity   int               `json:"quantity" validate:"gte=0"`
}

type subVariantDraft struct {
	Attributes map[string]string `json:"attributes" validate:"required,min=1,dive,keys,required,endkeys,required"`
	UnitPrice  decimal.Decimal   `json:"unit_price" validate:"gt=0"`
	Quantity   int               `json:"quantity" validate:"gte=0"`
}

type flatProductDraft struct {
	DraftID    string          `json:"draft_id" validate:"required"`
	Name       string          `json:"name" validate:"required"`
	CategoryID *int64          `json:"category_id" validate:"omitempty,gt=0"`
	UnitPrice  decimal.Decimal `json:"unit_price" validate:"gt=0"`
	Quantity   int             `json:"quantity" validate:"gte=0"`
}

type variantProductDraft struct {
	DraftID    string            `json:"draft_id" validate:"required"`
	Name       string            `json:"name" validate:"required"`
	CategoryID *int64            `json:"category_id" validate:"omitempty,gt=0"`
	Variants   []subVariantDraft `json:"variants" validate:"required,min=1,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateVariant(dv domain.DraftVariant) error {
	return collect(validate.Struct(variantDraft{
		DraftID:    dv.ID.String(),
		ProductID:  dv.ProductID,
		Attributes: dv.Attributes,
		UnitPrice:  dv.UnitPrice,
		Quantity:   dv.Quantity,
	}))
}

func validateProduct(dp domain.DraftProduct) error {
	name := strings.TrimSpace(dp.Name)
	if !dp.HasVariants() {
		return collect(validate.Struct(flatProductDraft{
			DraftID:    dp.ID.String(),
			Name:       name,
			CategoryID: dp.CategoryID,
			UnitPrice:  dp.UnitPrice,
			Quantity:   dp.Quantity,
		}))
	}
	subs := make([]subVariantDraft, 0, len(dp.Variants))
	for _, sv := range dp.Variants {
		subs = append(subs, subVariantDraft{Attributes: sv.Attributes, UnitPrice: sv.UnitPrice, Quantity: sv.Quantity})
	}
	return collect(validate.Struct(variantProductDraft{
		DraftID:    dp.ID.String(),
		Name:       name,
		CategoryID: dp.CategoryID,
		Variants:   subs,
	}))
}

// collect переводит ошибки validator в доменный ValidationError со всеми замечаниями сразу.
func collect(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &domain.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, domain.FieldError{Field: fieldPath(fe), Message: message(fe)})
	}
	return verr
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "min":
		return fmt.Sprintf("must contain at least %s entries", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
