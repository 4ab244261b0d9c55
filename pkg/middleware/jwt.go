package middleware

import (
	"bitwise74/pulsestream/internal/model"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// bearerToken reads the token from the Authorization header or, for
// EventSource clients that can't set headers, from the token query
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if s, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(s)
		}

		return ""
	}

	return c.Query("token")
}

// NewJWTMiddleware validates HS256 tokens signed with secret and sets
// userID and role on the context
func NewJWTMiddleware(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		requestID := c.GetString("requestID")

		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "No authorization token provided",
				"requestID": requestID,
			})
			return
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
			}

			return secret, nil
		})
		if err != nil || !token.Valid {
			msg := "Authorization token invalid"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Authorization token expired. Please log in again"
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     msg,
				"requestID": requestID,
			})

			zap.L().Debug("Rejected token", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		userID := claimString(claims, "user_id", "userId")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token invalid",
				"requestID": requestID,
			})
			return
		}

		roleStr, _ := claims["role"].(string)
		role := model.Role(roleStr)
		if !role.Valid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token invalid",
				"requestID": requestID,
			})
			return
		}

		c.Set("userID", userID)
		c.Set("role", role)
		c.Next()
	}
}

// claimString returns the first non-empty string claim among keys
func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && s != "" {
			return s
		}
	}

	return ""
}
