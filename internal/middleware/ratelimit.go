package middleware

import (
	"net/http"
	"strconv"

	"github.com/fairguard/backend/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RateLimitMiddleware limits commands per authenticated user. A store
// failure refuses the command rather than letting it through unmetered.
func RateLimitMiddleware(rl *ratelimit.Limiter) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(rl.Window().Seconds()))

	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == "" {
			c.Next()
			return
		}

		allowed, err := rl.Allow(c.Request.Context(), userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("rate limit check failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiter unavailable"})
			return
		}
		if !allowed {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}
