package main

import (
	"context"   // Context for startup checks and shutdown
	"errors"    // Server closed detection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal handling
	"syscall"   // SIGTERM
	"time"      // Shutdown timeout

	"gold_ledger/internal/api"       // HTTP handlers
	"gold_ledger/internal/broadcast" // Price broadcast scheduler
	"gold_ledger/internal/config"    // Custom package for configuration
	"gold_ledger/internal/db"        // Database connection and migration
	"gold_ledger/internal/goldapi"   // Live rate feed
	"gold_ledger/internal/ledger"    // Settlement engine
	"gold_ledger/internal/rates"     // Rate store
	"gold_ledger/internal/realtime"  // Observer transports
	"gold_ledger/internal/wallet"    // Wallet accessors

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode) // Set Mode to Release if in production
	}
	logger := logrus.StandardLogger()

	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET must be set")
	}

	conn, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	if cfg.DBDriver == "sqlite" {
		// Local development runs without a separate migrate step
		if err := db.Migrate(conn); err != nil {
			logrus.Fatalf("failed to migrate: %v", err)
		}
	}

	// Redis is optional: without it responses are not cached and prices stay in-process
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
	}

	strategy, err := rates.ParseStrategy(cfg.RateStrategy)
	if err != nil {
		logrus.Fatalf("invalid RATE_STRATEGY: %v", err)
	}
	feed := goldapi.NewClient(goldapi.Config{
		APIKey:   cfg.GoldAPIKey,
		BaseURL:  cfg.GoldAPIURL,
		Timeout:  cfg.GoldAPITimeout,
		USDToINR: cfg.USDToINR,
		Margin:   cfg.GoldMargin,
	}, logger)
	if !feed.Configured() {
		logrus.Warn("GOLD_API_KEY not set, live gold rates are disabled")
	}
	policy := rates.DefaultPolicy()
	policy.Strategy = strategy
	policy.AllowBootstrap = cfg.RateBootstrap
	store := rates.NewStore(conn, feed, policy, logger)

	// Observer transports
	hub := realtime.NewHub(logger)
	publishers := realtime.Fanout{hub}
	if redisClient != nil {
		publishers = append(publishers, realtime.NewRedisPublisher(redisClient, realtime.DefaultChannelPrefix))
	}
	ledgerOpts := ledger.Options{PreferLive: cfg.SettleLive}
	if cfg.AMQPURL != "" {
		amqpPub, err := realtime.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logrus.WithError(err).Warn("RabbitMQ unavailable, events will not be published to AMQP")
		} else {
			defer amqpPub.Close()
			publishers = append(publishers, amqpPub)
			ledgerOpts.Notifier = amqpPub
		}
	}

	engine := ledger.NewEngine(conn, store, ledgerOpts, logger)
	wallets := wallet.NewService(conn, store, logger)
	scheduler := broadcast.New(store, publishers, broadcast.Options{Interval: cfg.PriceInterval}, logger)
	hub.OnRefresh(func(ctx context.Context) error {
		_, err := scheduler.Refresh(ctx)
		return err
	})

	router, err := api.NewRouter(api.Deps{
		DB:             conn,
		Redis:          redisClient,
		Rates:          store,
		Ledger:         engine,
		Wallets:        wallets,
		Scheduler:      scheduler,
		Hub:            hub,
		JWTSecret:      cfg.JWTSecret,
		TrustedProxies: []string{"127.0.0.1"},
	})
	if err != nil {
		logrus.Fatalf("failed to build router: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		logrus.Fatalf("failed to start price broadcast: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.Info("Server running on " + cfg.AppPort) // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")
	scheduler.Stop()
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
}
