package api

import (
	"context"  // Context for cache invalidation
	"net/http" // HTTP status codes

	"gold_ledger/internal/apperr"    // Error kinds
	"gold_ledger/internal/broadcast" // Price broadcaster
	"gold_ledger/internal/ledger"    // Settlement engine
	"gold_ledger/internal/rates"     // Rate store
	"gold_ledger/internal/utils"     // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Decimal amounts
	"github.com/sirupsen/logrus"    // Logging library
)

// BuyGoldRequest is the body of POST /gold/buy
type BuyGoldRequest struct {
	AmountInRupees decimal.Decimal `json:"amountInRupees"` // Rupees to spend before GST
	GoldGrams      decimal.Decimal `json:"goldGrams"`      // Grams to credit
	StorageType    string          `json:"storageType"`    // Defaults to vault
	PaymentMode    string          `json:"paymentMode"`    // Defaults to TEST_WALLET
}

// SellGoldRequest is the body of POST /gold/sell
type SellGoldRequest struct {
	GoldGrams decimal.Decimal `json:"goldGrams"` // Grams to sell
}

// CurrentRateHandler returns the stored active rate without calling the feed
func CurrentRateHandler(store *rates.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rate, err := store.Current(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rate": rate})
	}
}

// RateHistoryHandler returns recent rates, most recent first
func RateHistoryHandler(store *rates.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", rates.DefaultHistoryLimit)
		history, err := store.History(c.Request.Context(), limit)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindInternal, "Failed to load rate history", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"rates": history})
	}
}

// RefreshRateHandler asks the broadcaster for a fresh price on behalf of the caller
func RefreshRateHandler(scheduler *broadcast.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		update, err := scheduler.Refresh(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rate": update})
	}
}

// BuyGoldHandler settles a purchase
func BuyGoldHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req BuyGoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.New(apperr.KindValidation, "Invalid request"))
			return
		}
		settlement, err := engine.Buy(c.Request.Context(), ledger.BuyRequest{
			UserID:         userID,
			AmountInRupees: req.AmountInRupees,
			GoldGrams:      req.GoldGrams,
			StorageType:    req.StorageType,
			PaymentMode:    req.PaymentMode,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		invalidateAfterTrade(rdb, userID)
		c.JSON(http.StatusOK, gin.H{
			"message":     "Gold purchased successfully",
			"transaction": settlement.Transaction,
			"wallet":      settlement.Wallet,
			"testWallet":  settlement.TestWallet,
		})
	}
}

// SellGoldHandler settles a sale
func SellGoldHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req SellGoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.New(apperr.KindValidation, "Invalid request"))
			return
		}
		settlement, err := engine.Sell(c.Request.Context(), ledger.SellRequest{UserID: userID, GoldGrams: req.GoldGrams})
		if err != nil {
			respondError(c, err)
			return
		}
		invalidateAfterTrade(rdb, userID)
		c.JSON(http.StatusOK, gin.H{
			"message":     "Gold sold successfully",
			"transaction": settlement.Transaction,
			"wallet":      settlement.Wallet,
			"testWallet":  settlement.TestWallet,
		})
	}
}

// invalidateAfterTrade drops the cached balance and every admin listing after a committed trade
func invalidateAfterTrade(rdb *redis.Client, userID uint) {
	ctx := context.Background()
	key := utils.BalanceCacheKey(utils.CacheGeneration(ctx, rdb, utils.BalanceGenerationKey), userID)
	if err := utils.DeleteCache(ctx, rdb, key); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate balance cache")
	}
	bumpGeneration(rdb, utils.AdminGenerationKey)
}

// bumpGeneration abandons every cached response built from the counter at key
func bumpGeneration(rdb *redis.Client, key string) {
	if err := utils.BumpCacheGeneration(context.Background(), rdb, key); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to invalidate cached responses")
	}
}
