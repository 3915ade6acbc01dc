package httpx

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// StructValidator plugs go-playground/validator into echo's c.Validate.
// Field names in errors follow json tags.
type StructValidator struct {
	v *validator.Validate
}

func NewStructValidator() *StructValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &StructValidator{v: v}
}

func (s *StructValidator) Validate(i any) error {
	return s.v.Struct(i)
}

// Engine exposes the validator for custom rule registration.
func (s *StructValidator) Engine() *validator.Validate { return s.v }

// BindAndValidate binds the request into dst and runs struct validation.
func BindAndValidate(c Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

func fieldErrorsFrom(errs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		out = append(out, FieldError{
			Type: e.Tag(),
			Loc:  fieldLocation(e.Namespace()),
			Msg:  fieldMessage(e),
		})
	}
	return out
}

// fieldLocation drops the root struct name: "signup.address.city" becomes
// ["body", "address", "city"].
func fieldLocation(namespace string) []string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return append([]string{"body"}, parts...)
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "Field required"
	case "email":
		return "value is not a valid email address"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	default:
		return "Invalid input"
	}
}
