package middlewares

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter allows each authenticated user limit requests per window,
// counted in Redis under prefix. With a nil client it lets everything through.
func RateLimiter(client *redis.Client, prefix string, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || limit <= 0 {
			c.Next()
			return
		}

		userID := c.GetString(ContextUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		ctx := c.Request.Context()
		userKey := prefix + ":" + userID

		count, err := client.Incr(ctx, userKey).Result()
		if err != nil {
			logger.Error("rate limiter increment failed", zap.String("key", userKey), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limiter unavailable"})
			return
		}

		// The window starts with the first request.
		if count == 1 {
			if err := client.Expire(ctx, userKey, window).Err(); err != nil {
				logger.Error("rate limiter expiry failed", zap.String("key", userKey), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limiter unavailable"})
				return
			}
		}

		if count > int64(limit) {
			retryAfter, _ := client.TTL(ctx, userKey).Result()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests, please try again later.",
				"retry_after": retryAfter.Seconds(),
			})
			return
		}

		c.Next()
	}
}
