package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
)

type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

func Success(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func Error(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func BadRequest(c *gin.Context, message, details string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func InternalError(c *gin.Context, message, details string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, details)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, "CONFLICT", message, nil)
}

func ValidationError(c *gin.Context, details interface{}) {
	Error(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", details)
}

// FromError maps an application error kind to an HTTP status and the
// structured {error, suggestion, details} payload.
func FromError(c *gin.Context, err error) {
	appErr := apperrors.AsError(err)

	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"

	switch appErr.Kind {
	case apperrors.KindValidation:
		status = http.StatusUnprocessableEntity
		code = "VALIDATION_ERROR"
	case apperrors.KindNotFound:
		status = http.StatusNotFound
		code = "NOT_FOUND"
	case apperrors.KindState:
		status = http.StatusConflict
		code = "STATE_ERROR"
	case apperrors.KindConflict:
		status = http.StatusConflict
		code = "CONFLICT"
	case apperrors.KindProcessing:
		status = http.StatusUnprocessableEntity
		code = "PROCESSING_ERROR"
	}

	c.JSON(status, Response{
		Success: false,
		Message: appErr.Message,
		Error: &ErrorDetail{
			Code:       code,
			Message:    appErr.Message,
			Suggestion: appErr.Suggestion,
			Details:    appErr.Details,
		},
	})
}
