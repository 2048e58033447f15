package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCode defines standard error codes for programmatic handling
type ErrorCode string

const (
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"      // 400 - Malformed request
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"     // 401 - Not authenticated
	ErrCodePaymentRequired ErrorCode = "PAYMENT_REQUIRED" // 402 - Out of credits
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"        // 404 - Resource not found
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"   // 500 - Unexpected error
)

// ErrorResponse is the standard error response structure
type ErrorResponse struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	} `json:"error"`
}

func respondError(c *gin.Context, status int, code ErrorCode, message string) {
	resp := ErrorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	c.AbortWithStatusJSON(status, resp)
}

// RespondBadRequest sends a 400 Bad Request error
func RespondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// RespondUnauthorized sends a 401 Unauthorized error
func RespondUnauthorized(c *gin.Context, message string) {
	respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// RespondPaymentRequired sends a 402 Payment Required error
func RespondPaymentRequired(c *gin.Context, message string) {
	respondError(c, http.StatusPaymentRequired, ErrCodePaymentRequired, message)
}

// RespondNotFound sends a 404 Not Found error
func RespondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// RespondInternalError sends a 500 Internal Server Error
func RespondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, ErrCodeInternal, message)
}
