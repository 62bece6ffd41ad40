package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marcogenualdo/session-coordinator/internal/identifier"
	"github.com/marcogenualdo/session-coordinator/internal/navigation"
)

// Validator checks request bodies and reports failures by JSON field name.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// A phone number is exactly what the identifier resolver treats as one.
	mustRegister(validate, "phone", func(fl validator.FieldLevel) bool {
		return identifier.IsPhone(fl.Field().String())
	})
	mustRegister(validate, "localpath", func(fl validator.FieldLevel) bool {
		return navigation.IsLocalPath(fl.Field().String())
	})

	return &Validator{validate: validate}
}

func mustRegister(validate *validator.Validate, tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register %s validation: %v", tag, err))
	}
}

// Struct returns a message per invalid field, or nil when s is valid.
func (v *Validator) Struct(s any) map[string]string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return map[string]string{"body": err.Error()}
	}

	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	case "phone":
		return fmt.Sprintf("%s must be %d digits", field, identifier.PhoneLength)
	case "localpath":
		return fmt.Sprintf("%s must be a path on this site", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
