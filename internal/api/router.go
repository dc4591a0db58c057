package api

import (
	"net/http" // HTTP status codes

	"gold_ledger/internal/broadcast"  // Price broadcaster
	"gold_ledger/internal/ledger"     // Settlement engine
	"gold_ledger/internal/middleware" // Auth middleware
	"gold_ledger/internal/rates"      // Rate store
	"gold_ledger/internal/realtime"   // Websocket hub
	"gold_ledger/internal/wallet"     // Wallet accessors

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// Deps are the collaborators the HTTP surface is built from. Redis and Hub are optional.
type Deps struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Rates          *rates.Store
	Ledger         *ledger.Engine
	Wallets        *wallet.Service
	Scheduler      *broadcast.Scheduler
	Hub            *realtime.Hub
	JWTSecret      string
	TrustedProxies []string
}

// NewRouter registers every route on a fresh gin engine
func NewRouter(d Deps) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		return nil, err
	}

	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok"}
		if sqlDB, err := d.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status["status"] = "degraded"
			status["db"] = "unreachable"
		}
		if d.Scheduler != nil {
			status["broadcast"] = d.Scheduler.Running()
		}
		if d.Hub != nil {
			status["observers"] = d.Hub.Clients()
		}
		c.JSON(http.StatusOK, status)
	})

	// Auth routes
	r.POST("/user", RegisterHandler(d.DB, d.Redis)) // Registration endpoint
	r.GET("/user", LoginHandler(d.DB, d.JWTSecret)) // Login endpoint
	r.GET("/gold/rates/current", CurrentRateHandler(d.Rates))

	// Observers
	if d.Hub != nil {
		r.GET("/ws/prices", d.Hub.ServeWS)
	}

	// Gold routes (protected by JWT)
	gold := r.Group("/gold")
	gold.Use(middleware.JWTAuthMiddleware(d.JWTSecret))
	gold.GET("/rates/history", RateHistoryHandler(d.Rates))
	if d.Scheduler != nil {
		gold.POST("/rates/refresh", RefreshRateHandler(d.Scheduler))
	}
	gold.POST("/buy", BuyGoldHandler(d.Ledger, d.Redis))
	gold.POST("/sell", SellGoldHandler(d.Ledger, d.Redis))
	gold.GET("/transactions", TransactionsHandler(d.Wallets))
	gold.GET("/wallet/balance", BalanceHandler(d.Wallets, d.Redis))
	gold.GET("/wallet/stats", StatsHandler(d.Wallets))
	gold.GET("/test-wallet", TestWalletHandler(d.Ledger))
	gold.POST("/test-wallet/add-credits", AddCreditsHandler(d.Ledger, d.Redis))
	gold.POST("/test-wallet/reset", ResetTestWalletHandler(d.Ledger, d.Redis))

	// Admin operations also reachable under /gold for existing clients
	goldAdmin := gold.Group("", middleware.AdminOnlyMiddleware(d.DB))
	goldAdmin.POST("/rates", SetRateHandler(d.Rates, d.Scheduler, d.Redis))
	goldAdmin.GET("/transactions/all", ListTransactionsHandler(d.Wallets, d.Redis))

	// Admin routes (protected, admin only)
	admin := r.Group("/admin")
	admin.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.AdminOnlyMiddleware(d.DB))
	admin.POST("/rates", SetRateHandler(d.Rates, d.Scheduler, d.Redis))
	admin.GET("/transactions", ListTransactionsHandler(d.Wallets, d.Redis))
	admin.GET("/users", ListUsersHandler(d.DB, d.Redis))

	return r, nil
}
