package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	apiKeyHeader   = "X-API-Key"
	adminKeyHeader = "X-Admin-Key"
)

// APIKeyMiddleware validates the API key from the X-API-Key header.
// If apiKey is empty, authentication is disabled.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return requireKey(apiKeyHeader, apiKey, "API key")
}

// AdminKeyMiddleware guards roster mutations and zone resets with the
// X-Admin-Key header. If adminKey is empty, the check is disabled.
func AdminKeyMiddleware(adminKey string) gin.HandlerFunc {
	return requireKey(adminKeyHeader, adminKey, "admin key")
}

func requireKey(header, key, label string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(header)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing " + label,
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid " + label,
			})
			return
		}

		c.Next()
	}
}
