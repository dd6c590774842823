package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fullsound/config"
	"fullsound/internal/api"
	"fullsound/internal/auth"
	"fullsound/internal/broker"
	"fullsound/internal/gateway"
	"fullsound/internal/redisclient"
	"fullsound/internal/service"
	"fullsound/internal/store"
	"fullsound/internal/util"
	"fullsound/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting FullSound order service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("fullsound", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
		logger.Info("Database migrations applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	gatewayProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicGateway)
	defer gatewayProducer.Close()
	logger.Info("Kafka producers initialized",
		zap.String("order_topic", cfg.Kafka.TopicOrder),
		zap.String("gateway_topic", cfg.Kafka.TopicGateway))

	eventPublisher := broker.NewEventPublisher(orderProducer, gatewayProducer)

	stripeGateway := gateway.NewStripe(cfg.Stripe)
	tokens := auth.NewTokenManager(cfg.Auth)

	orderService := service.NewOrderService(db, redisClient, eventPublisher, service.OrderServiceConfig{
		LockTTL:        cfg.Business.OrderLockTTL,
		NumberAttempts: cfg.Business.OrderNumberAttempts,
	})
	paymentService := service.NewPaymentService(db, stripeGateway, redisClient, eventPublisher, service.PaymentServiceConfig{
		Currency: cfg.Stripe.Currency,
		LockTTL:  cfg.Business.OrderLockTTL,
	})
	catalogService := service.NewCatalogService(db)
	authService := service.NewAuthService(db, tokens)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	gatewayConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicGateway, cfg.Kafka.ConsumerGroup)
	paymentWorker := worker.NewPaymentWorker(gatewayConsumer, paymentService)
	go func() {
		if err := paymentWorker.Start(workerCtx); err != nil {
			logger.Error("Payment worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Orders:       orderService,
		Payments:     paymentService,
		Catalog:      catalogService,
		Auth:         authService,
		Tokens:       tokens,
		Webhooks:     gateway.NewWebhookVerifier(cfg.Stripe.WebhookSecret),
		WebhookQueue: eventPublisher,
		Dedup:        redisClient,
		DedupTTL:     cfg.Business.WebhookDedupTTL,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadinessChecks: map[string]func(context.Context) error{
			"database": db.Ping,
			"redis":    redisClient.Ping,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := paymentWorker.Stop(); err != nil {
		logger.Warn("Error stopping payment worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
