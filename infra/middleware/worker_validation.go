package middleware

import (
	"errors"
	"strings"

	"crm_worker/pkg/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks validate tags on s and returns a VALIDATION_FAILED
// error listing each failing field.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.ValidationFailed(err.Error())
	}

	messages := make([]string, 0, len(verrs))
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		var msg string
		switch fe.Tag() {
		case "required":
			msg = field + " is required"
		case "min":
			msg = field + " must be at least " + fe.Param()
		case "max":
			msg = field + " must be at most " + fe.Param()
		case "oneof":
			msg = field + " must be one of [" + fe.Param() + "]"
		case "email":
			msg = field + " must be a valid email"
		default:
			msg = field + " is invalid"
		}
		messages = append(messages, msg)
		fields[field] = fe.Tag()
	}

	appErr := apperr.ValidationFailed(strings.Join(messages, ", "))
	for k, v := range fields {
		appErr = appErr.WithDetail(k, v)
	}
	return appErr
}

// ValidateIDParam rejects requests whose route param is not a positive integer.
func ValidateIDParam(paramName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt(paramName)
		if err != nil || id <= 0 {
			return apperr.InvalidInput(paramName, "must be a positive integer")
		}
		return c.Next()
	}
}
