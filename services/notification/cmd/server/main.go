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
	"github.com/CyberwizD/account-events/services/notification/internal/config"
	"github.com/CyberwizD/account-events/services/notification/internal/handlers"
	"github.com/CyberwizD/account-events/services/notification/internal/mailer"
	"github.com/CyberwizD/account-events/services/notification/internal/repository"
	"github.com/CyberwizD/account-events/services/notification/internal/services"
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

	logr := logger.New(cfg.LogLevel, cfg.LogFormat).With(slog.String("service", "notification"))

	// Initialize Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()

	metricsCollector := metrics.New("notification")

	// Initialize RabbitMQ
	mqManager, err := rabbitmq.NewManager(cfg.AMQPURL, logr)
	if err != nil {
		logr.Error("failed to connect to RabbitMQ", slog.Any("error", err))
		os.Exit(1)
	}
	defer mqManager.Close()

	sender, err := mailer.New(cfg.SMTP, logr)
	if err != nil {
		logr.Error("failed to configure mailer", slog.Any("error", err))
		os.Exit(1)
	}
	notifier := services.NewNotifier(sender, repository.NewRedisRepository(redisClient, cfg.IdempotencyTTL), cfg.BaseURL, logr)

	listenerCfg := rabbitmq.ListenerConfig{
		Exchange:    cfg.AMQPExchange,
		QueuePrefix: cfg.AMQPQueue,
		Prefetch:    cfg.AMQPPrefetch,
		NackPolicy:  cfg.NackPolicy,
	}
	tokenListener := rabbitmq.NewListener(mqManager, events.TokenCreatedContract, listenerCfg,
		notifier.HandleTokenCreated, rabbitmq.WithObserver(metricsCollector))
	userListener := rabbitmq.NewListener(mqManager, events.UserCreatedContract, listenerCfg,
		notifier.HandleUserCreated, rabbitmq.WithObserver(metricsCollector))

	health := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metricsCollector.GinMiddleware())
	router.GET("/metrics", gin.WrapH(metricsCollector.Handler()))
	router.GET("/health", health.HealthCheck)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return tokenListener.Listen(ctx) })
	g.Go(func() error { return userListener.Listen(ctx) })
	g.Go(func() error {
		logr.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
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
		logr.Error("service stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logr.Info("service exiting")
}
