package shared

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Global validator instance for reuse
var validate = validator.New()

// ValidateRequest validates the given struct using the validator package.
func ValidateRequest(v interface{}) error {
	// Check if the object implements the Validate interface
	if validator, ok := v.(interface{ Validate() error }); ok {
		return validator.Validate()
	}

	// Otherwise, use the struct validator
	return validate.Struct(v)
}

// ParseFormBool reads an HTML form flag. Besides the strconv spellings it
// accepts "on" and "yes"; an empty or unrecognized value is false.
func ParseFormBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "yes", "y":
		return true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && b
}
