package middleware

import (
	"net/http"
	"strings"

	"souq-backend/i18n"
	"souq-backend/utils"

	"github.com/gin-gonic/gin"
)

// abortWithKey writes the standard error envelope for a symbolic key and
// stops the handler chain.
func abortWithKey(c *gin.Context, status int, key string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": i18n.T(c.GetString("lang"), key),
		"key":   key,
	})
}

// AuthMiddleware validates the Bearer token and stores the caller's identity
// ("user_id" as uuid.UUID, "user_role" as string) on the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithKey(c, http.StatusUnauthorized, "common.unauthorized")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWithKey(c, http.StatusUnauthorized, "common.unauthorized")
			return
		}

		claims, err := utils.ValidateToken(parts[1])
		if err != nil {
			abortWithKey(c, http.StatusUnauthorized, "common.invalidToken")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_role", claims.Role)
		c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("user_role")
		if !exists || role != "admin" {
			abortWithKey(c, http.StatusForbidden, "common.forbidden")
			return
		}
		c.Next()
	}
}
