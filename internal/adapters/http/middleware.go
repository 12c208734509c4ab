package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

const ctxUserKey = "user_id"

// BearerAuth validates the Authorization header and stashes the resolved
// user id in the request context.
func BearerAuth(auth core.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}
		c.Set(ctxUserKey, string(user))
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.UserID {
	return domain.UserID(c.GetString(ctxUserKey))
}
