package product

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Default values applied to fields an administrator leaves untouched.
const (
	DefaultMinStock = 5
	DefaultCategory = CategorySnacks
)

// Form is the administrator's product payload. Field names in the json tags
// are the wire names used by the catalog store.
type Form struct {
	Name     string              `json:"name" validate:"required,max=255"`
	Price    decimal.Decimal     `json:"price" validate:"gte=0"`
	Stock    int                 `json:"stock" validate:"gte=0"`
	MinStock int                 `json:"min_stock" validate:"gte=0"`
	Category Category            `json:"category" validate:"required,category"`
	Cost     decimal.NullDecimal `json:"cost" validate:"gte=0"`
	Image    *File               `json:"imagen" validate:"-"`
}

// NewForm returns a form holding the defaults of a blank product.
func NewForm() Form {
	return Form{
		Price:    decimal.Zero,
		MinStock: DefaultMinStock,
		Category: DefaultCategory,
	}
}

// File is an uploaded image.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// ValidationError reports invalid input, keyed by field. Fields keep the order
// the store reported them in. Message is the store's own explanation of a
// rejection that names no field.
type ValidationError struct {
	Fields  []FieldError
	Message string
}

func (e *ValidationError) Error() string {
	f, ok := e.First()
	if !ok {
		if e != nil && e.Message != "" {
			return e.Message
		}
		return "validation failed"
	}
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// First returns the first reported field error.
func (e *ValidationError) First() (FieldError, bool) {
	if e == nil || len(e.Fields) == 0 {
		return FieldError{}, false
	}
	return e.Fields[0], true
}

// Field looks up the error reported for name.
func (e *ValidationError) Field(name string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldError{}, false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, _ := f.Interface().(decimal.Decimal).Float64()
		return d
	}, decimal.Decimal{})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		nd := f.Interface().(decimal.NullDecimal)
		if !nd.Valid {
			return float64(0)
		}
		d, _ := nd.Decimal.Float64()
		return d
	}, decimal.NullDecimal{})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return Category(fl.Field().String()).IsValid()
	})
	return v
}

// Validate checks the form the way the catalog store does before accepting a
// record. It returns a *ValidationError listing fields in declaration order.
func (f Form) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	verr := &ValidationError{Fields: make([]FieldError, 0, len(errs))}
	for _, fe := range errs {
		code, msg := validationMessage(fe)
		verr.Fields = append(verr.Fields, FieldError{
			Field:   fe.Field(),
			Code:    code,
			Message: msg,
		})
	}
	return verr
}

func validationMessage(fe validator.FieldError) (code, msg string) {
	switch fe.Tag() {
	case "required":
		return "validation_required", "Missing required value."
	case "gte":
		return "validation_min_number_constraint", fmt.Sprintf("Must be no less than %s.", fe.Param())
	case "max":
		return "validation_max_text_constraint", fmt.Sprintf("Must be less than %s character(s).", fe.Param())
	case "category":
		return "validation_invalid_value", fmt.Sprintf("Invalid value %v.", fe.Value())
	}
	return "validation_invalid_value", "Invalid value."
}
