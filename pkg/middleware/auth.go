package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// APIKeyAuth guards the transfer API. Webhook routes use HMAC verification
// instead and are not behind this.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Api-Key")
		if got == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "api key is required in 'X-Api-Key' header"})
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			logrus.Warn("APIKeyAuth: rejected request with invalid api key")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
