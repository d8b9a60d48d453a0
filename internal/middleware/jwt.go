package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/pkg/errcode"
	"github.com/xxxsen/docchat/internal/pkg/jwt"
	"github.com/xxxsen/docchat/internal/pkg/response"
)

const ContextUserIDKey = "user_id"

// JWTAuth resolves the caller identity from a bearer token. With an empty
// secret it lets every request through without an identity.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "missing authorization")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "invalid authorization")
			return
		}
		claims, err := jwt.ParseToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "invalid token")
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Next()
	}
}

// AuthUserID returns the authenticated user id, or "" when auth is off.
func AuthUserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}
