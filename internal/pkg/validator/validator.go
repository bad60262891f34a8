package validator

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	playground "github.com/go-playground/validator/v10"
	"quotr/internal/pkg/errors"
)

const MaxNameLength = 200

var validate = newValidate()

func newValidate() *playground.Validate {
	v := playground.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("nocontrol", func(fl playground.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
	})
	return v
}

// Name trims a display name or identifier and rejects empty, overlong or
// control-character values.
func Name(field, value string) (string, error) {
	name := strings.TrimSpace(value)
	if err := validate.Var(name, fmt.Sprintf("required,max=%d,nocontrol", MaxNameLength)); err != nil {
		return "", invalid(field, err)
	}
	return name, nil
}

// Emails checks a non-empty list of recipient addresses.
func Emails(field string, values []string) error {
	if err := validate.Var(values, "required,min=1,max=50,dive,required,email"); err != nil {
		return invalid(field, err)
	}
	return nil
}

// Struct validates the `validate` tags of an input struct.
func Struct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return invalid("", err)
	}
	return nil
}

// invalid turns the first failed rule into an InvalidInput error.
func invalid(field string, err error) error {
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "%s is invalid", field)
	}

	fe := verrs[0]
	if field == "" {
		field = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return errors.Wrap(errors.ErrInvalidInput, "%s is required", field)
	case "max":
		return errors.Wrap(errors.ErrInvalidInput, "%s must be at most %s%s", field, fe.Param(), unit(fe.Kind()))
	case "min":
		return errors.Wrap(errors.ErrInvalidInput, "%s must be at least %s%s", field, fe.Param(), unit(fe.Kind()))
	case "nocontrol":
		return errors.Wrap(errors.ErrInvalidInput, "%s must not contain control characters", field)
	case "email":
		return errors.Wrap(errors.ErrInvalidInput, "%s must contain valid email addresses", field)
	default:
		return errors.Wrap(errors.ErrInvalidInput, "%s failed %s", field, fe.Tag())
	}
}

func unit(kind reflect.Kind) string {
	switch kind {
	case reflect.String:
		return " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		return " entries"
	default:
		return ""
	}
}
