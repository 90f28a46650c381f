package response

import (
	"net/http"

	appErrors "github.com/charlesng35/sessiond/pkg/errors"
	"github.com/gin-gonic/gin"
)

// ErrorBody is the payload written for every failed request.
type ErrorBody struct {
	Error ErrorInfo `json:"error"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// JSON writes data as the response body without an envelope.
func JSON(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, data)
}

// NoContent finishes the request with 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error writes a JSON error response derived from an AppError. Internal
// causes are never serialised.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.AbortWithStatusJSON(status, ErrorBody{
		Error: ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
		},
	})
}

// FieldError writes a 400 response naming the offending field.
func FieldError(c *gin.Context, field, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{
		Error: ErrorInfo{
			Code:    appErrors.ErrBadRequest.Code,
			Message: message,
			Field:   field,
		},
	})
}
