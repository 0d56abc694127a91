package middlewares

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"civicsync-api/models"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ContextUserID  = "user_id"
	ContextIsAdmin = "is_admin"
)

// AuthMiddleware validates the bearer token and stores the caller's identity
// in the gin context. Tokens are issued elsewhere.
func AuthMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			var vErr *jwt.ValidationError
			if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
				return
			}
			logger.Debug("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}
		userID := stringClaim(claims, "user_id")
		if userID == "" {
			userID = stringClaim(claims, "userId")
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}
		isAdmin, _ := claims["is_admin"].(bool)

		c.Set(ContextUserID, userID)
		c.Set(ContextIsAdmin, isAdmin)
		c.Next()
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// CurrentActor returns the authenticated caller. It must run after AuthMiddleware.
func CurrentActor(c *gin.Context) models.Actor {
	return models.Actor{
		UserID:  c.GetString(ContextUserID),
		IsAdmin: c.GetBool(ContextIsAdmin),
	}
}
