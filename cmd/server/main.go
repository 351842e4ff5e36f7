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

	"carpool-pay/internal/config"
	handlers "carpool-pay/internal/handlers/shared"
	"carpool-pay/internal/middleware"
	"carpool-pay/internal/repositories/mongodb"
	"carpool-pay/internal/services"
	"carpool-pay/pkg/cache"
	"carpool-pay/pkg/database"
	applogger "carpool-pay/pkg/logger"
	"carpool-pay/pkg/mailer"
	"carpool-pay/pkg/payment"
	"carpool-pay/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := applogger.NewLogger(&applogger.Config{
		Level:  applogger.LogLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
		Output: "stdout",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer db.Close()

	if err := database.NewMigrator(db.Database).Up(); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	gateway := newGateway(cfg, logger)

	smtpMailer := mailer.NewSMTPMailer(&mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.FromEmail,
		FromName: cfg.SMTP.FromName,
	})

	// Repositories
	walletRepo := mongodb.NewWalletRepository(db.Database)
	topUpRepo := mongodb.NewWalletTransactionRepository(db.Database)
	withdrawalRepo := mongodb.NewWithdrawalRepository(db.Database)
	escrowRepo := mongodb.NewEscrowRepository(db.Database, redisCache)
	sessionRepo := mongodb.NewSessionRepository(db.Database, redisCache)

	// Services
	notifierService := services.NewNotifierService(smtpMailer, cfg.Escrow, logger)
	walletService := services.NewWalletService(walletRepo, topUpRepo, withdrawalRepo, db, gateway, logger)
	escrowService := services.NewEscrowService(escrowRepo, walletRepo, db, gateway, notifierService, cfg.Escrow, logger)
	carpoolService := services.NewCarpoolService(sessionRepo, escrowService, gateway, notifierService, cfg.Escrow, logger)

	// Handlers
	walletHandler := handlers.NewWalletHandler(walletService)
	escrowHandler := handlers.NewEscrowHandler(escrowService)
	carpoolHandler := handlers.NewCarpoolHandler(carpoolService)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(logger))

	v1 := router.Group("/api/v1")
	{
		routes.SetupWalletRoutes(v1, walletHandler)
		routes.SetupEscrowRoutes(v1, escrowHandler)
		routes.SetupCarpoolRoutes(v1, carpoolHandler)
	}

	router.GET("/health", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": cfg.App.Version,
		})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	// Stale sessions get escalated on a fixed interval so nobody waits on a
	// party that never answers.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, carpoolService, logger)

	go func() {
		logger.WithField("port", cfg.App.Port).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Forced server shutdown")
	}
}

func newGateway(cfg *config.Config, logger *applogger.Logger) payment.Gateway {
	switch cfg.Payment.DefaultProvider {
	case "razorpay":
		logger.Info("Using Razorpay payment gateway")
		return payment.NewRazorpayGateway(cfg.Payment.Razorpay.KeyID, cfg.Payment.Razorpay.KeySecret)
	default:
		logger.Info("Using Stripe payment gateway")
		return payment.NewStripeGateway(cfg.Payment.Stripe.SecretKey)
	}
}

func runSweeper(ctx context.Context, carpoolService services.CarpoolService, logger *applogger.Logger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			escalated, err := carpoolService.SweepStale(ctx)
			if err != nil {
				logger.WithError(err).Error("Stale session sweep failed")
				continue
			}
			if escalated > 0 {
				logger.WithField("escalated", escalated).Info("Escalated stale sessions")
			}
		}
	}
}
