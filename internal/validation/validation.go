package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Fields reported in validation errors.
const (
	FieldOriginalURL   = "original_url"
	FieldShortCode     = "short_code"
	FieldExpiresInDays = "expires_in_days"
)

// Reasons reported in validation errors.
const (
	ReasonInvalidURL    = "invalid_url"
	ReasonInvalidLength = "invalid_length"
	ReasonAlreadyExists = "already_exists"
	ReasonInvalidValue  = "invalid_value"
)

const (
	MinCodeLen = 3
	MaxCodeLen = 20

	// MaxExpiryDays keeps expiries within what timestamptz can store.
	MaxExpiryDays = 36500
)

// ValidationError describes the first rule a create request broke.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// New returns a ValidationError for field and reason.
func New(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// CreateInput is the caller-supplied part of a new URL entry.
type CreateInput struct {
	URL           string  `field:"original_url" validate:"required,abs_url"`
	ExpiresInDays *int    `field:"expires_in_days" validate:"omitnil,gte=1,lte=36500"`
	ShortCode     *string `field:"short_code" validate:"omitnil,min=3,max=20,code_chars"`
}

// codeChars are the characters a custom code may use; anything else would
// not survive the /r/:short_code route.
var codeChars = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// reasons maps a failing field, and optionally its rule, to a reason.
var reasons = map[string]string{
	FieldOriginalURL:              ReasonInvalidURL,
	FieldShortCode:                ReasonInvalidLength,
	FieldShortCode + ":code_chars": ReasonInvalidValue,
	FieldExpiresInDays:            ReasonInvalidValue,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("field")
	})
	if err := v.RegisterValidation("abs_url", absoluteURL); err != nil {
		panic("register abs_url: " + err.Error())
	}
	if err := v.RegisterValidation("code_chars", func(fl validator.FieldLevel) bool {
		return codeChars.MatchString(fl.Field().String())
	}); err != nil {
		panic("register code_chars: " + err.Error())
	}
	return v
}

// absoluteURL accepts URLs carrying at least a scheme and a host.
func absoluteURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	return err == nil && u.Scheme != "" && u.Host != ""
}

// ValidateCreate checks in against the create rules. Store-dependent rules
// (custom code already taken) are the caller's job.
func ValidateCreate(in CreateInput) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	field := errs[0].Field()
	if reason, ok := reasons[field+":"+errs[0].Tag()]; ok {
		return New(field, reason)
	}
	return New(field, reasons[field])
}
