package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/classr/internal/http/response"
)

// BasicAuth requires user `user` with password apiKey. An empty key disables
// authentication entirely.
func BasicAuth(user, apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(apiKey)) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="classr"`)
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errUnauthorized)
			return
		}
		c.Set(gin.AuthUserKey, u)
		c.Next()
	}
}

var errUnauthorized = errors.New("API-key verification failed")
