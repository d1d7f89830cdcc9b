package users

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}_.\-]{3,64}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Optional profile fields arrive as pointers, where "" means "clear".
	// These validators therefore accept the empty string.
	mustRegister(v, "username", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || usernameRegex.MatchString(s)
	})
	mustRegister(v, "avatar_url", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		if len(s) > 2048 {
			return false
		}
		u, err := url.ParseRequestURI(s)
		return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	})
	mustRegister(v, "role", func(fl validator.FieldLevel) bool {
		return Role(fl.Field().Uint()).IsValid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register %s validation: %v", tag, err))
	}
}

func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// NormalizeEmail trims surrounding space and lower-cases the address. Emails
// are stored and looked up in this form.
func NormalizeEmail(email string) string {
	// Casers hold state, so each call gets its own.
	return cases.Lower(language.Und).String(strings.TrimSpace(email))
}
