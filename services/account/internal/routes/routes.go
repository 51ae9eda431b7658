package routes

import (
	"time"

	"github.com/CyberwizD/account-events/services/account/internal/handlers"
	"github.com/CyberwizD/account-events/services/account/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
)

// APIBasePath prefixes every account endpoint.
const APIBasePath = "/api/users/v1"

// RateLimit bounds requests per client IP.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// SetupRoutes configures the routes for the application.
func SetupRoutes(
	router *gin.Engine,
	accountHandler *handlers.AccountHandler,
	healthHandler *handlers.HealthHandler,
	sessions middleware.SessionParser,
	redisClient *redis.Client,
	limit RateLimit,
	cb *gobreaker.CircuitBreaker,
) {
	router.Use(middleware.CorrelationIDMiddleware())

	// Setup routes
	v1 := router.Group(APIBasePath)
	v1.Use(middleware.RateLimitMiddleware(redisClient, limit.Requests, limit.Window))
	v1.Use(middleware.CircuitBreakerMiddleware(cb))
	v1.Use(middleware.CurrentUserMiddleware(sessions))
	{
		v1.POST("/signup", accountHandler.SignUp)
		v1.POST("/signin", accountHandler.SignIn)
		v1.POST("/signout", accountHandler.SignOut)
		v1.GET("/current-user", accountHandler.CurrentUser)
		v1.POST("/verify-email/:token", accountHandler.VerifyEmail)
		v1.POST("/forgot-password", accountHandler.ForgotPassword)
		v1.POST("/reset-password/:token", accountHandler.ResetPassword)
		v1.POST("/change-password", middleware.AuthMiddleware(), accountHandler.ChangePassword)
	}

	// Health check endpoint
	router.GET("/health", healthHandler.HealthCheck)
}
