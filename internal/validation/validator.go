// Package validation validates request bodies and catalog entries using the validator/v10 library.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shopzz/catmap/internal/domain"
	domainerrors "github.com/shopzz/catmap/internal/errors"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator configured for our domain.
func New() *Validator {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// CategoryID is a string underneath; validate it as one.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if id, ok := field.Interface().(domain.CategoryID); ok {
			return string(id)
		}
		return nil
	}, domain.CategoryID(""))

	_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return domain.Platform(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("external_platform", func(fl validator.FieldLevel) bool {
		return domain.Platform(fl.Field().String()).IsExternal()
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err, "")
	}
	return nil
}

// ValidateCategories validates every entry of a catalog and rejects
// duplicate IDs. Field errors are keyed by entry index, e.g. "[3].name".
func (v *Validator) ValidateCategories(platform domain.Platform, cats []domain.Category) error {
	fieldErrors := make(map[string]string)
	seen := make(map[domain.CategoryID]int, len(cats))

	for i, c := range cats {
		prefix := fmt.Sprintf("[%d].", i)
		if err := v.v.Struct(c); err != nil {
			var validationErrs validator.ValidationErrors
			if !errors.As(err, &validationErrs) {
				return err
			}
			for _, e := range validationErrs {
				fieldErrors[prefix+e.Field()] = v.friendlyMessage(e)
			}
		}
		if c.ID.IsZero() {
			continue
		}
		if first, dup := seen[c.ID]; dup {
			fieldErrors[prefix+"id"] = fmt.Sprintf("duplicates entry [%d]", first)
			continue
		}
		seen[c.ID] = i
	}

	if len(fieldErrors) > 0 {
		return domainerrors.ValidationWithDetails(
			fmt.Sprintf("%s catalog has %d invalid entries", platform, len(fieldErrors)), fieldErrors)
	}
	return nil
}

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error, prefix string) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string)
	for _, e := range validationErrs {
		fieldErrors[prefix+e.Field()] = v.friendlyMessage(e)
	}

	return domainerrors.ValidationWithDetails("validation failed", fieldErrors)
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "lt":
		return "must be less than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "platform":
		return "must be one of: canonical source_a source_b"
	case "external_platform":
		return "must be one of: source_a source_b"
	default:
		return "is invalid"
	}
}
