package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ContextKeySubject = "operator_subject"
	ContextKeyIsAdmin = "operator_is_admin"
	ContextKeyClaims  = "operator_claims"
)

// Middleware creates a JWT authentication middleware
func Middleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, ErrUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abort(c, http.StatusUnauthorized, ErrUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			var authErr AuthError
			if !errors.As(err, &authErr) {
				authErr = ErrInvalidToken
			}
			abort(c, http.StatusUnauthorized, authErr, authErr.Message)
			return
		}

		c.Set(ContextKeySubject, claims.Subject)
		c.Set(ContextKeyIsAdmin, claims.IsAdmin)
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireAdmin middleware ensures the operator is an admin
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsAdmin) {
			abort(c, http.StatusForbidden, ErrForbidden, "admin access required")
			return
		}
		c.Next()
	}
}

// GetSubject extracts the operator subject from the Gin context
func GetSubject(c *gin.Context) string {
	return c.GetString(ContextKeySubject)
}

func abort(c *gin.Context, status int, e AuthError, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   e.Code,
		"message": message,
	})
}
