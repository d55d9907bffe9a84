package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"live-bidding/services/bidding/helpers"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"user_id": helpers.UserID(c),
		"latency": time.Since(start).String(),
	})
}

// TokenVerifier resolves a bearer token to a user id
type TokenVerifier interface {
	UserID(token string) (string, error)
}

var (
	errInvalidToken  = errors.New("invalid bearer token")
	errMissingToken  = errors.New("missing bearer token")
	errInvalidSecret = errors.New("invalid cron secret")
)

// IdentityMiddleware stores the caller's user id in the context when a valid
// bearer token is present. Requests without a token continue anonymously;
// requests with a bad token are rejected.
func IdentityMiddleware(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			utils.JSONError(c, http.StatusUnauthorized, errInvalidToken, "authentication required")
			c.Abort()
			return
		}

		userID, err := tokens.UserID(token)
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, errInvalidToken, "authentication required")
			utils.Warn("IdentityMiddleware: token rejected", map[string]any{"error": err.Error()})
			c.Abort()
			return
		}
		c.Set(helpers.UserIDKey, userID)
		c.Next()
	}
}

// RequireUser rejects anonymous requests
func RequireUser(c *gin.Context) {
	if helpers.UserID(c) == "" {
		utils.JSONError(c, http.StatusUnauthorized, errMissingToken, "authentication required")
		c.Abort()
		return
	}
	c.Next()
}

// CronSecretMiddleware guards scheduler endpoints with a shared secret header
func CronSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Cron-Secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			utils.JSONError(c, http.StatusUnauthorized, errInvalidSecret, "invalid cron secret")
			utils.Warn("CronSecretMiddleware: rejected", map[string]any{"path": c.Request.URL.Path})
			c.Abort()
			return
		}
		c.Next()
	}
}
