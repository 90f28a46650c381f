package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/sessiond/pkg/errors"
	"github.com/charlesng35/sessiond/pkg/response"
	appValidator "github.com/charlesng35/sessiond/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response naming the first offending field is
// written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		if ve, ok := err.(appValidator.ValidationErrors); ok && len(ve) > 0 {
			response.FieldError(c, ve[0].Field, validationMessage(ve[0]))
			return false
		}
		response.Error(c, appErrors.NewBadRequest("invalid request payload"))
		return false
	}

	return true
}

func validationMessage(failure appValidator.ValidationError) string {
	field := failure.Field
	if field == "" {
		field = "field"
	}

	switch failure.Tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, failure.Param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, failure.Param)
	case "login":
		return fmt.Sprintf("%s may contain only letters, digits, '_' and '-'", field)
	default:
		if failure.Param != "" {
			return fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param)
		}
		return fmt.Sprintf("%s failed validation: %s", field, failure.Tag)
	}
}
