package middleware

import (
	"net/http" // HTTP status codes

	"gold_ledger/internal/domain" // Importing domain models

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// AdminOnlyMiddleware re-reads the user's role on each request, so a demoted admin loses
// access before their token expires
func AdminOnlyMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get(ContextUserID) // Set by JWTAuthMiddleware
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var user domain.User
		if err := db.WithContext(c.Request.Context()).Select("id", "role").First(&user, userID).Error; err != nil || !user.IsAdmin() {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,
				"path":    c.FullPath(),
			}).Warn("Admin access denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next() // Admin, proceed
	}
}
