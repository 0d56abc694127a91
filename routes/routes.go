package routes

import (
	"net/http"
	"time"

	"civicsync-api/controllers"
	"civicsync-api/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps is everything the router needs.
type Deps struct {
	Issues         *controllers.IssueController
	Chat           *controllers.ChatController
	JWTSecret      string
	Redis          *redis.Client
	ChatRateLimit  int
	IssueRateLimit int
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

// Setup registers every route on r.
func Setup(r *gin.Engine, d Deps) {
	controllers.UseJSONFieldNames()
	r.Use(middlewares.RequestLogger(d.Logger), gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := middlewares.AuthMiddleware(d.JWTSecret, d.Logger)
	issueLimit := middlewares.RateLimiter(d.Redis, "ratelimit:issues", d.IssueRateLimit, 24*time.Hour, d.Logger)
	chatLimit := middlewares.RateLimiter(d.Redis, "ratelimit:chat", d.ChatRateLimit, time.Hour, d.Logger)

	IssueRoutes(r, d.Issues, auth, issueLimit)
	ChatRoutes(r, d.Chat, auth, chatLimit)
}
