package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mto-maintenance/apiserver/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return types.IsValidRole(fl.Field().String())
	})
	return v
}

// messages overrides the generic wording for specific fields.
var messages = map[string]string{
	"username.min":             "Username must be at least 3 characters",
	"email.email":              "Valid email is required",
	"email.required":           "Valid email is required",
	"password.min":             "Password must be at least 6 characters",
	"password.required":        "Password is required",
	"firstName.required":       "First name is required",
	"lastName.required":        "Last name is required",
	"rank.required":            "Rank is required",
	"serviceNumber.required":   "Service number is required",
	"role.role":                "Valid role is required",
	"role.required":            "Valid role is required",
	"unit.required":            "Unit is required",
	"location.required":        "Location is required",
	"identifier.required":      "Username/Email is required",
	"currentPassword.required": "Current password is required",
	"newPassword.min":          "New password must be at least 6 characters",
}

// validateRequest returns the field errors of req, or nil if it is valid.
func validateRequest(req any) []FieldError {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
