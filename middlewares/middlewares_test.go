package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func authRouter(t *testing.T) *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(testSecret, zaptest.NewLogger(t)), func(c *gin.Context) {
		actor := CurrentActor(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "is_admin": actor.IsAdmin})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "No authorization token provided"},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized, "Invalid authorization token"},
		{
			"wrong secret",
			"Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "u1", "exp": future}),
			http.StatusUnauthorized, "Invalid authorization token",
		},
		{
			"expired",
			"Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "u1", "exp": past}),
			http.StatusUnauthorized, "Token expired",
		},
		{
			"wrong algorithm",
			"Bearer " + sign(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"user_id": "u1", "exp": future}),
			http.StatusUnauthorized, "Invalid authorization token",
		},
		{
			"no subject",
			"Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": future}),
			http.StatusUnauthorized, "Invalid token claims",
		},
		{
			"user",
			"Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "u1", "exp": future}),
			http.StatusOK, `{"is_admin":false,"user_id":"u1"}`,
		},
		{
			"admin with camel-case id",
			"Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"userId": "a1", "is_admin": true, "exp": future}),
			http.StatusOK, `{"is_admin":true,"user_id":"a1"}`,
		},
	}

	r := authRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestRateLimiterWithoutRedisPassesThrough(t *testing.T) {
	r := gin.New()
	r.POST("/chat", RateLimiter(nil, "chat", 1, time.Hour, zaptest.NewLogger(t)), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

// TestRateLimiterRedis needs a live server: REDIS_TEST_ADDRESS=localhost:6379.
func TestRateLimiterRedis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "test-limit-" + uuid.NewString()
	r := gin.New()
	r.POST("/issues",
		func(c *gin.Context) { c.Set(ContextUserID, "u1"); c.Next() },
		RateLimiter(client, prefix, 2, time.Minute, zaptest.NewLogger(t)),
		func(c *gin.Context) { c.Status(http.StatusCreated) },
	)

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/issues", nil))
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)

	ttl, err := client.TTL(context.Background(), prefix+":u1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
