package api

import (
	"net/http" // HTTP status codes
	"regexp"   // Regular expressions
	"strings"  // String manipulation

	"gold_ledger/internal/apperr" // Error kinds
	"gold_ledger/internal/domain" // Importing domain models
	"gold_ledger/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"golang.org/x/crypto/bcrypt"   // Password hashing
	"gorm.io/gorm"                 // GORM ORM library
)

// Credentials is the body of both register and login
type Credentials struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// AuthResponse carries the issued token
type AuthResponse struct {
	Token string `json:"token"` // JWT token
	Role  string `json:"role"`  // Role of the authenticated user
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z]+$`)

// validCredentials enforces alphabetic usernames and 8-15 character passwords
func validCredentials(req Credentials) string {
	if !usernamePattern.MatchString(req.Username) {
		return "Username must be alphabetic only"
	}
	if len(req.Password) < 8 || len(req.Password) > 15 {
		return "Password must be 8-15 characters"
	}
	return ""
}

// RegisterHandler creates a trader account. Wallets are created lazily by the ledger.
func RegisterHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "code": apperr.KindValidation})
			return
		}
		if msg := validCredentials(req); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperr.KindValidation})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		// Usernames are stored lowercase so uniqueness is case-insensitive
		user := domain.User{Username: strings.ToLower(req.Username), Password: string(hash), Role: domain.RoleUser}
		if err := db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists", "code": apperr.KindValidation})
			return
		}
		logrus.WithField("user_id", user.ID).Info("User registered")
		bumpGeneration(rdb, utils.AdminGenerationKey) // New row on the admin user listing
		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "id": user.ID})
	}
}

// LoginHandler checks the password and returns a JWT
func LoginHandler(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "code": apperr.KindValidation})
			return
		}
		var user domain.User
		if err := db.WithContext(c.Request.Context()).Where("username = ?", strings.ToLower(req.Username)).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		token, err := utils.GenerateJWT(user.ID, user.Role, jwtSecret)
		if err != nil {
			logrus.WithError(err).Error("Failed to generate token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		c.JSON(http.StatusOK, AuthResponse{Token: token, Role: user.Role})
	}
}
