package api

import (
	"github.com/gin-gonic/gin"
)

// Application error codes.
const (
	ErrorCodeValidation         = "VALIDATION_ERROR"
	ErrorCodeInvalidJSON        = "INVALID_JSON"
	ErrorCodeUnauthorized       = "UNAUTHORIZED"
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrorCodeInternal           = "INTERNAL_SERVER_ERROR"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// RespondWithError sends a standardized JSON error response.
func RespondWithError(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: message, Details: details})
}

// RespondWithSuccess sends data as JSON, or no body when data is nil.
func RespondWithSuccess(c *gin.Context, status int, data any) {
	if data == nil {
		c.Status(status)
		return
	}
	c.JSON(status, data)
}
