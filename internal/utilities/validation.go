package utilities

import (
	"github.com/go-playground/validator/v10"
)

// Validator wraps the struct validator registered as the "validation"
// utility. One instance caches struct metadata and is safe for concurrent
// use.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates the validation utility.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Struct validates a struct against its `validate` tags.
func (v *Validator) Struct(s any) error {
	return v.validate.Struct(s)
}

// Var validates a single value against a tag expression.
func (v *Validator) Var(field any, tag string) error {
	return v.validate.Var(field, tag)
}
