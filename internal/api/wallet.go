package api

import (
	"net/http" // HTTP status codes

	"gold_ledger/internal/apperr" // Error kinds
	"gold_ledger/internal/ledger" // Settlement engine
	"gold_ledger/internal/utils"  // Utility functions
	"gold_ledger/internal/wallet" // Wallet accessors

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Decimal amounts
	"github.com/sirupsen/logrus"    // Logging library
)

// AddCreditsRequest is the body of POST /gold/test-wallet/add-credits
type AddCreditsRequest struct {
	Amount decimal.Decimal `json:"amount"` // Zero or absent credits the default amount
}

// BalanceHandler returns holdings valued at the current rate, cached for a minute
func BalanceHandler(svc *wallet.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		generation := utils.CacheGeneration(ctx, rdb, utils.BalanceGenerationKey)
		cacheKey := utils.BalanceCacheKey(generation, userID) // Cache key for this user's balance
		var cached wallet.Balance
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"balance": cached, "cached": true})
			return
		} else if err != nil {
			logrus.WithError(err).Warn("Balance cache read failed") // Fall through to the database
		}
		balance, err := svc.Balance(ctx, userID)
		if err != nil {
			respondError(c, err)
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, balance, utils.CacheTTL)
		c.JSON(http.StatusOK, gin.H{"balance": balance, "cached": false})
	}
}

// StatsHandler returns cost basis and unrealised P/L
func StatsHandler(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		stats, err := svc.Stats(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}

// TransactionsHandler returns the caller's ledger, newest first
func TransactionsHandler(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		limit := queryInt(c, "limit", wallet.DefaultHistoryLimit)
		txs, err := svc.Transactions(c.Request.Context(), userID, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}

// TestWalletHandler returns the virtual balance, creating it on first access
func TestWalletHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		tw, err := engine.TestWallet(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"testWallet": tw})
	}
}

// AddCreditsHandler tops the virtual balance up
func AddCreditsHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req AddCreditsRequest
		// An empty body means the default top-up
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, apperr.New(apperr.KindValidation, "Invalid request"))
				return
			}
		}
		tw, err := engine.TopUp(c.Request.Context(), userID, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		bumpGeneration(rdb, utils.AdminGenerationKey) // Admin user listings show the test wallet
		c.JSON(http.StatusOK, gin.H{"message": "Credits added", "testWallet": tw})
	}
}

// ResetTestWalletHandler restores the default virtual balance
func ResetTestWalletHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		tw, err := engine.Reset(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		bumpGeneration(rdb, utils.AdminGenerationKey)
		c.JSON(http.StatusOK, gin.H{"message": "Test wallet reset", "testWallet": tw})
	}
}
