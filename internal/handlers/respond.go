// Package handlers exposes the engine's operations to the operator console
// over HTTP. Every route maps onto one library call; policy outcomes come
// back as typed statuses in the body, never as HTTP errors.
package handlers

import (
	"errors"
	"net/http"

	"github.com/fairguard/backend/internal/middleware"
	"github.com/fairguard/backend/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorResponse sends a standardized error response and logs at caller if needed
func ErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondError maps validation failures to 400 with per-field reasons and
// everything else to a logged 500
func respondError(c *gin.Context, op string, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verrs})
		return
	}
	log.Error().Err(err).Str("op", op).Str("user_id", middleware.UserID(c)).Msg("request failed")
	ErrorResponse(c, http.StatusInternalServerError, "internal error")
}

// bindJSON decodes the body, answering 400 itself on failure
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusCode turns a typed not-found outcome into 404, leaving every other
// outcome at 200
func statusCode(notFound bool) int {
	if notFound {
		return http.StatusNotFound
	}
	return http.StatusOK
}
