package api

import (
	"context"  // Context for publishing
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation

	"gold_ledger/internal/apperr"    // Error kinds
	"gold_ledger/internal/broadcast" // Price broadcaster
	"gold_ledger/internal/domain"    // Importing domain models
	"gold_ledger/internal/rates"     // Rate store
	"gold_ledger/internal/utils"     // Utility functions
	"gold_ledger/internal/wallet"    // Wallet accessors

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Decimal amounts
	"github.com/sirupsen/logrus"    // Logging library
	"gorm.io/gorm"                  // GORM ORM library
)

// SetRateRequest is the body of POST /admin/rates
type SetRateRequest struct {
	BuyRate  decimal.Decimal `json:"buyRate"`  // Price users pay per gram
	SellRate decimal.Decimal `json:"sellRate"` // Price users receive per gram
}

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID         uint              `json:"id"`         // User ID
	Username   string            `json:"username"`   // Username
	Role       string            `json:"role"`       // User role
	Wallet     domain.Wallet     `json:"wallet"`     // Gold wallet, zero if never traded
	TestWallet domain.TestWallet `json:"testWallet"` // Virtual cash wallet, zero if never used
}

// UserPage is one page of users
type UserPage struct {
	Users      []UserAdminResponse `json:"users"`       // List of users
	Page       int                 `json:"page"`        // Current page
	PageSize   int                 `json:"page_size"`   // Page size
	Total      int64               `json:"total"`       // Total number of users
	TotalPages int                 `json:"total_pages"` // Total pages
}

// SetRateHandler stores an administrator override as the new active rate and announces it
func SetRateHandler(store *rates.Store, scheduler *broadcast.Scheduler, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req SetRateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.New(apperr.KindValidation, "Invalid request"))
			return
		}
		rate, err := store.SetActiveRate(c.Request.Context(), req.BuyRate, req.SellRate, actorID)
		if err != nil {
			respondError(c, err)
			return
		}
		bumpGeneration(rdb, utils.BalanceGenerationKey) // Cached balances carry the old rate
		if scheduler != nil {
			if err := scheduler.Announce(context.Background(), rate); err != nil {
				logrus.WithError(err).WithField("rate_id", rate.ID).Warn("Rate override not broadcast")
			}
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Gold rate updated", "rate": rate})
	}
}

// ListTransactionsHandler returns every ledger row, filtered by user_id and type
func ListTransactionsHandler(svc *wallet.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		filter := wallet.Filter{
			Type:     strings.ToUpper(c.Query("type")),
			Page:     queryInt(c, "page", 1),
			PageSize: queryInt(c, "page_size", wallet.DefaultPageSize),
		}
		if raw := c.Query("user_id"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				respondError(c, apperr.New(apperr.KindValidation, "user_id must be a number"))
				return
			}
			filter.UserID = uint(id)
		}
		// Build cache key from the normalised filter
		generation := utils.CacheGeneration(ctx, rdb, utils.AdminGenerationKey)
		cacheKey := "admin:gold_txs:g" + strconv.FormatInt(generation, 10) +
			":user=" + strconv.FormatUint(uint64(filter.UserID), 10) +
			":type=" + filter.Type +
			":page=" + strconv.Itoa(filter.Page) +
			":size=" + strconv.Itoa(filter.PageSize)
		var cached wallet.Page
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions, // List of transactions
				"page":         cached.Page,         // Current page
				"page_size":    cached.PageSize,     // Page size
				"total":        cached.Total,        // Total number of transactions
				"total_pages":  cached.TotalPages,   // Total pages
				"cached":       true,                // Indicate response is from cache
			})
			return
		}
		page, err := svc.AllTransactions(ctx, filter)
		if err != nil {
			respondError(c, err)
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, page, utils.CacheTTL)
		c.JSON(http.StatusOK, gin.H{
			"transactions": page.Transactions,
			"page":         page.Page,
			"page_size":    page.PageSize,
			"total":        page.Total,
			"total_pages":  page.TotalPages,
			"cached":       false,
		})
	}
}

// ListUsersHandler returns users with both wallets
func ListUsersHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page := queryInt(c, "page", 1)
		pageSize := queryInt(c, "page_size", wallet.DefaultPageSize)
		if pageSize > wallet.MaxPageSize {
			pageSize = wallet.DefaultPageSize
		}
		generation := utils.CacheGeneration(ctx, rdb, utils.AdminGenerationKey)
		cacheKey := "admin:users:g" + strconv.FormatInt(generation, 10) +
			":page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)
		var cached UserPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"users": cached.Users, "page": cached.Page, "page_size": cached.PageSize,
				"total": cached.Total, "total_pages": cached.TotalPages, "cached": true})
			return
		}

		var total int64
		if err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
			respondError(c, apperr.Wrap(apperr.KindInternal, "Failed to count users", err))
			return
		}
		var users []domain.User
		if err := db.WithContext(ctx).
			Preload("Wallet").
			Preload("TestWallet").
			Order("id asc").
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&users).Error; err != nil {
			respondError(c, apperr.Wrap(apperr.KindInternal, "Failed to fetch users", err))
			return
		}

		out := UserPage{
			Users:      make([]UserAdminResponse, len(users)),
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		}
		for i, u := range users {
			out.Users[i] = UserAdminResponse{
				ID:         u.ID,
				Username:   u.Username,
				Role:       u.Role,
				Wallet:     u.Wallet,
				TestWallet: u.TestWallet,
			}
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, out, utils.CacheTTL)
		c.JSON(http.StatusOK, gin.H{"users": out.Users, "page": out.Page, "page_size": out.PageSize,
			"total": out.Total, "total_pages": out.TotalPages, "cached": false})
	}
}
