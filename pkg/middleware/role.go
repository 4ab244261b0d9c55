package middleware

import (
	"bitwise74/pulsestream/internal/model"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// RequireRole only lets requests through whose role, set by the JWT
// middleware, is one of roles
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		r, _ := role.(model.Role)

		if !slices.Contains(roles, r) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "You don't have permission to do this",
				"requestID": c.GetString("requestID"),
			})
			return
		}

		c.Next()
	}
}

// Caller returns the identity set by the JWT middleware
func Caller(c *gin.Context) (string, model.Role) {
	role, _ := c.Get("role")
	r, _ := role.(model.Role)

	return c.GetString("userID"), r
}
