// Package middleware contains any custom middleware used in the app
package middleware

import (
	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const requestIDCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewRequestIDMiddleware returns a new middleware function that generates a request ID for
// each incoming request and sets it as requestID. The ID is echoed in the
// X-Request-ID header.
func NewRequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := gonanoid.MustGenerate(requestIDCharset, 12)

		c.Set("requestID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
