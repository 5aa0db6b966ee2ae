package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"callgate/internal/config"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// RequireClient guards the calls API. It accepts HTTP basic credentials
// (the original integration style) or a bearer token when a Manager is
// configured. Either scheme resolves to a 401 on failure; no scheme
// details leak in the response.
//
// manager may be nil when only basic auth is configured.
func RequireClient(cfg config.AuthConfig, manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))

		if strings.HasPrefix(raw, bearerPrefix) && manager != nil {
			tok := strings.TrimPrefix(raw, bearerPrefix)
			claims, err := manager.Verify(tok, time.Now())
			if err != nil {
				unauthorized(c)
				return
			}
			c.Set("account_sid", claims.AccountSID)
			c.Next()
			return
		}

		if cfg.BasicUsername != "" {
			user, pass, ok := c.Request.BasicAuth()
			if ok && constantTimeEqual(user, cfg.BasicUsername) && constantTimeEqual(pass, cfg.BasicPassword) {
				c.Next()
				return
			}
		}

		unauthorized(c)
	}
}

// RequireHookSecret guards the switch event hook with a shared secret
// header. An empty secret disables the check (local only).
func RequireHookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		if !constantTimeEqual(c.GetHeader("X-Switch-Secret"), secret) {
			unauthorized(c)
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Basic realm="callgate"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
