package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// CacheControl disables caching for API answers and token pages, which are
// per-contract, and lets browsers keep static assets for an hour.
func CacheControl() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if strings.HasPrefix(path, "/static/") {
			c.Header("Cache-Control", "public, max-age=3600, must-revalidate")
			c.Next()
			return
		}

		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}
