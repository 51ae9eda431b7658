package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CyberwizD/account-events/pkg/events"
	"github.com/CyberwizD/account-events/pkg/logger"
	"github.com/CyberwizD/account-events/pkg/metrics"
	"github.com/CyberwizD/account-events/pkg/rabbitmq"
	"github.com/CyberwizD/account-events/services/account/internal/config"
	"github.com/CyberwizD/account-events/services/account/internal/handlers"
	"github.com/CyberwizD/account-events/services/account/internal/middleware"
	"github.com/CyberwizD/account-events/services/account/internal/repository"
	"github.com/CyberwizD/account-events/services/account/internal/routes"
	"github.com/CyberwizD/account-events/services/account/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.LogFormat).With(slog.String("service", "account"))

	// Initialize database
	db, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		logr.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()

	metricsCollector := metrics.New("account")

	// Initialize RabbitMQ
	mqManager, err := rabbitmq.NewManager(cfg.AMQPURL, logr)
	if err != nil {
		logr.Error("failed to connect to RabbitMQ", slog.Any("error", err))
		os.Exit(1)
	}
	defer mqManager.Close()

	userCreated := rabbitmq.NewPublisher(mqManager, cfg.AMQPExchange, events.UserCreatedContract,
		rabbitmq.WithObserver(metricsCollector))
	tokenCreated := rabbitmq.NewPublisher(mqManager, cfg.AMQPExchange, events.TokenCreatedContract,
		rabbitmq.WithObserver(metricsCollector))

	// Initialize services
	tokens := services.NewTokenService(repository.NewTokenStore(db), services.WithTTL(cfg.TokenTTL))
	accounts := services.NewAccountService(db, tokens, userCreated, tokenCreated, logr)
	sessions := services.NewSessionManager(cfg.JWTKey, services.DefaultSessionTTL)
	sweeper := services.NewSweeper(tokens, cfg.TokenSweepInterval, logr)

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metricsCollector.GinMiddleware())
	router.GET("/metrics", gin.WrapH(metricsCollector.Handler()))

	routes.SetupRoutes(router,
		handlers.NewAccountHandler(accounts, sessions, cfg.SecureCookies, logr),
		handlers.NewHealthHandler(map[string]handlers.Pinger{
			"postgres": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
		sessions,
		redisClient,
		routes.RateLimit{Requests: cfg.RateLimit, Window: cfg.RateLimitWindow},
		middleware.NewCircuitBreaker("account-api", logr),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logr.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-mqManager.NotifyClose():
			if !ok {
				return nil
			}
			return errors.New("rabbitmq connection closed: " + amqpErr.Error())
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		logr.Info("shutting down server")

		// The server has 5 seconds to finish the requests it is handling.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logr.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logr.Info("server exiting")
}
