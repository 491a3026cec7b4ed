package roles

import (
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var roleKeyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// NewValidator returns a validator that understands decimal fields and role keys.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("rolekey", func(fl validator.FieldLevel) bool {
		return ValidRoleKey(fl.Field().String())
	})
	return v
}

// ValidRoleKey reports whether key is lowercase letters, digits and underscores.
func ValidRoleKey(key string) bool {
	return len(key) <= 64 && roleKeyPattern.MatchString(key)
}
