// Package validator checks the JSON bodies of the checkout routes against
// their struct tags.
package validator

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/deepakselfhelp/deepak-payments/internal"
	"github.com/go-playground/validator/v10"
)

// Validator is a wrapper around the go-playground/validator package.
type Validator struct {
	validator *validator.Validate
}

// New creates a new Validator instance. Field errors are reported with the
// json name of the field.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Register custom validation functions
	_ = v.RegisterValidation("phone", validatePhone)
	_ = v.RegisterValidation("amount", validateAmount)
	_ = v.RegisterValidation("decimal", validateDecimal)

	return &Validator{
		validator: v,
	}
}

// Validate validates a struct. The returned error is a ValidationErrors
// listing every invalid field.
func (v *Validator) Validate(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	validationErrors := make(ValidationErrors, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fieldErr.Field(),
			Message: getErrorMessage(fieldErr),
		})
	}
	return validationErrors
}

// validatePhone accepts any number the phone numbering plan knows, with or
// without international prefix.
func validatePhone(fl validator.FieldLevel) bool {
	// If the field is empty, it's valid (use required tag if it's required)
	if fl.Field().String() == "" {
		return true
	}
	_, err := internal.SanitizePhoneNumber(fl.Field().String(), "")
	return err == nil
}

// validateAmount accepts a decimal amount greater than zero.
func validateAmount(fl validator.FieldLevel) bool {
	v, ok := parseDecimal(fl.Field().String())
	return ok && v > 0
}

// validateDecimal accepts a decimal amount greater than or equal to zero.
func validateDecimal(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	v, ok := parseDecimal(fl.Field().String())
	return ok && v >= 0
}

func parseDecimal(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}
