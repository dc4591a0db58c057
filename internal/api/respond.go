package api

import (
	"errors"
	"net/http"
	"strconv"

	"gold_ledger/internal/apperr"
	"gold_ledger/internal/broadcast"
	"gold_ledger/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFor maps an error kind onto an HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInsufficientFunds, apperr.KindInsufficientGold:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindNoRate, apperr.KindRateFetch:
		return http.StatusServiceUnavailable
	case apperr.KindSettlementAborted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": message, "code": kind}. Internal causes are logged, not returned.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, broadcast.ErrNotRunning) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Price broadcast is not running", "code": apperr.KindNoRate})
		return
	}
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"code":  kind,
			"error": err.Error(),
		}).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": apperr.Message(err), "code": kind})
}

// currentUserID reads the id stored by JWTAuthMiddleware
func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(middleware.ContextUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return id, true
}

// queryInt parses a positive integer query parameter, falling back to def
func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v > 0 {
		return v
	}
	return def
}
