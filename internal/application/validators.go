package application

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/hallucheck/internal/domain"
)

// supportedProviders mirrors the provider factories registered by the llm
// package. It is kept here so configuration can be checked without
// importing infrastructure.
var supportedProviders = []string{"anthropic", "google", "openai", "perplexity"}

// NewConfigValidator returns a validator with the custom tags used by Config
// registered, and with field names taken from their yaml tags so errors
// point at the keys a user actually writes.
func NewConfigValidator() (*validator.Validate, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	if err := RegisterConfigValidators(v); err != nil {
		return nil, err
	}
	return v, nil
}

// RegisterConfigValidators adds the evalmode and llmprovider tags.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("evalmode", validateEvalMode); err != nil {
		return fmt.Errorf("failed to register evalmode validator: %w", err)
	}
	if err := v.RegisterValidation("llmprovider", validateProvider); err != nil {
		return fmt.Errorf("failed to register llmprovider validator: %w", err)
	}
	return nil
}

// validateEvalMode accepts exactly the three prompting modes. Empty values
// are left to the required tag.
func validateEvalMode(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	return domain.Mode(s).Valid()
}

func validateProvider(fl validator.FieldLevel) bool {
	return slices.Contains(supportedProviders, fl.Field().String())
}

// describeFieldError turns a validator failure into a short human message.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "evalmode":
		return fmt.Sprintf("%q is not one of baseline|prompt-tuned|rag-assisted", fe.Value())
	case "llmprovider":
		return fmt.Sprintf("%q is not one of %s", fe.Value(), strings.Join(supportedProviders, "|"))
	case "oneof":
		return fmt.Sprintf("%v is not one of %s", fe.Value(), fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
