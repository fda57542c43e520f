package middleware

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/classify"
	"go.uber.org/zap"
)

// APIError is the error body returned by every endpoint.
type APIError struct {
	Message         string `json:"error"`
	ErrorType       string `json:"error_type,omitempty"`
	Suggestion      string `json:"suggestion,omitempty"`
	ResponsePreview string `json:"response_preview,omitempty"`
}

// Error types that are not classifier categories.
const (
	ErrTypeBadRequest          = "bad_request"
	ErrTypeConfiguration       = "configuration_error"
	ErrTypeRateLimited         = "rate_limited"
	ErrTypeUnrecoverableOutput = "unrecoverable_output"
	ErrTypeServer              = "server_error"
)

// RespondError sends an error body.
func RespondError(c *gin.Context, status int, errorType string, message string) {
	c.AbortWithStatusJSON(status, APIError{Message: message, ErrorType: errorType})
}

// RespondQuota sends the quota exhaustion body. retry_after is always present
// and null when the provider gave no hint.
func RespondQuota(c *gin.Context, message string, retryAfterSeconds *int) {
	if retryAfterSeconds != nil {
		c.Header("Retry-After", strconv.Itoa(*retryAfterSeconds))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       message,
		"error_type":  string(classify.QuotaExceeded),
		"retry_after": retryAfterSeconds,
	})
}

// RespondClassified renders a classified provider failure.
func RespondClassified(c *gin.Context, classified *classify.ClassifiedError) {
	if classified.Category == classify.QuotaExceeded {
		RespondQuota(c, classified.Message, classified.RetryAfterSeconds)
		return
	}
	errorType := string(classified.Category)
	if classified.Category == classify.Generic {
		errorType = classified.ErrorType
	}
	c.AbortWithStatusJSON(classified.StatusCode(), APIError{
		Message:    classified.Message,
		ErrorType:  errorType,
		Suggestion: classified.Suggestion,
	})
}

// RespondUnrecoverable reports model output that could not be turned into JSON.
func RespondUnrecoverable(c *gin.Context, message, preview string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, APIError{
		Message:         message,
		ErrorType:       ErrTypeUnrecoverableOutput,
		ResponsePreview: preview,
	})
}

// BadRequest sends a 400 error
func BadRequest(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, ErrTypeBadRequest, message)
}

// MissingConfiguration sends a 500 error for a service that is not set up
func MissingConfiguration(c *gin.Context, message string) {
	RespondError(c, http.StatusInternalServerError, ErrTypeConfiguration, message)
}

// InternalError sends a 500 error
func InternalError(c *gin.Context, message string) {
	RespondError(c, http.StatusInternalServerError, ErrTypeServer, message)
}

// Recovery turns a panic into a logged 500 with the standard error body.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"),
		)
		InternalError(c, "處理請求時發生錯誤")
	})
}
