package api

import (
	"net/http"

	"kline-service/internal/model"

	"github.com/gin-gonic/gin"
)

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case model.IsValidation(err), model.IsInsufficientData(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders {"error": msg}. Caller-visible errors carry their own
// message; anything else is replaced by fallback so internals don't leak.
func writeError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		c.Error(err)
		if fallback == "" {
			fallback = "Internal server error"
		}
		msg = fallback
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
