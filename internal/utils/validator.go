// internal/utils/validator.go
package utils

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	validate.RegisterValidation("log_format", validateLogFormat)
	validate.RegisterValidation("probability", validateProbability)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// decimalValue lets numeric tags such as gte/lte apply to decimal fields.
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func validateLogFormat(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "text", "json":
		return true
	}
	return false
}

func validateProbability(fl validator.FieldLevel) bool {
	p := fl.Field().Float()
	return p >= 0 && p <= 1
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   e.Namespace(),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

// JoinValidationErrors flattens a validator error into one readable line.
func JoinValidationErrors(err error) string {
	errs := GetValidationErrors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	return strings.Join(messages, "; ")
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Namespace() + " is required"
	case "gte", "min":
		return e.Namespace() + " must be at least " + e.Param()
	case "lte", "max":
		return e.Namespace() + " must be at most " + e.Param()
	case "oneof":
		return e.Namespace() + " must be one of [" + e.Param() + "]"
	case "url":
		return e.Namespace() + " must be a valid URL"
	case "probability":
		return e.Namespace() + " must be between 0 and 1"
	case "log_format":
		return e.Namespace() + " must be text or json"
	default:
		return e.Namespace() + " is invalid"
	}
}
