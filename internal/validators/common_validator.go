package validators

import (
	"fmt"
	"strings"

	"carpool-pay/internal/utils"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Details flattens the errors into the API envelope's details map.
func (v ValidationErrors) Details() map[string]string {
	details := make(map[string]string, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

// ValidateStruct validates request tags and returns per-field errors.
func ValidateStruct(s interface{}) ValidationErrors {
	err := utils.ValidateStruct(s)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{Field: "request", Message: err.Error()}}
	}

	var validationErrors ValidationErrors
	for _, fieldError := range fieldErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   strings.ToLower(fieldError.Field()),
			Tag:     fieldError.Tag(),
			Message: messageForTag(fieldError),
		})
	}
	return validationErrors
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "object_id":
		return "Must be a valid object ID"
	case "currency_code":
		return "Must be a supported currency code"
	case "minor_amount":
		return "Must be a positive amount in minor units"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("Failed validation: %s", fe.Tag())
	}
}
