// Package middleware holds the gin middlewares.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cyberchat-go/internal/conversation"
	"cyberchat-go/internal/service"
	"cyberchat-go/pkg/log"
)

// SessionKey is the gin context key holding the resolved *conversation.Session.
const SessionKey = "session"

// SessionAuth resolves the Bearer session token and stores the session in the context.
func SessionAuth(sessionService service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header format"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		sess, err := sessionService.Resolve(c.Request.Context(), tokenString)
		if err != nil {
			log.Warnf("[SessionAuth] rejected session token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}

		c.Set(SessionKey, sess)
		c.Next()
	}
}

// CurrentSession returns the session stored by SessionAuth.
func CurrentSession(c *gin.Context) (*conversation.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*conversation.Session)
	return sess, ok
}
