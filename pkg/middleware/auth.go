package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"opsdashboard/pkg/auth"
	apperrors "opsdashboard/pkg/errors"
)

const claimsKey = "claims"

// RevocationChecker reports whether a session token has been revoked.
type RevocationChecker interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// abortWithError renders err as the standard error body and stops the chain.
func abortWithError(c *gin.Context, err error) {
	status, body := apperrors.ToResponse(err)
	c.AbortWithStatusJSON(status, body)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware JWT authentication middleware. revoked may be nil.
func AuthMiddleware(jwtManager *auth.JWTManager, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := BearerToken(c)
		if !ok {
			abortWithError(c, apperrors.NewUnauthorized(apperrors.ReasonUnauthorized, "Authorization header required"))
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				abortWithError(c, apperrors.NewUnauthorized(apperrors.ReasonTokenExpired, "Token expired"))
			} else {
				abortWithError(c, apperrors.NewUnauthorized(apperrors.ReasonUnauthorized, "Invalid token"))
			}
			return
		}

		if revoked != nil {
			blacklisted, err := revoked.IsBlacklisted(c.Request.Context(), tokenString)
			if err != nil {
				abortWithError(c, err)
				return
			}
			if blacklisted {
				abortWithError(c, apperrors.NewUnauthorized(apperrors.ReasonTokenRevoked, "Token revoked"))
				return
			}
		}

		// Store claims in context
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", string(claims.Role))
		c.Set("org_slug", claims.OrgSlug)
		c.Set(claimsKey, claims)

		if jwtManager.ShouldRenew(claims) {
			if newToken, err := jwtManager.RenewToken(claims); err == nil {
				c.Header("X-New-Token", newToken)
				c.Header("X-Token-Renewed", "true")
			}
		}

		c.Next()
	}
}

// RequirePermission middleware to check permissions
func RequirePermission(rbacManager *auth.RBACManager, permission auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			abortWithError(c, apperrors.ErrUnauthorized)
			return
		}

		if !rbacManager.HasPermission(claims.Role, permission) {
			abortWithError(c, apperrors.NewForbidden(apperrors.ReasonForbidden, "Insufficient permissions: "+string(permission)))
			return
		}

		c.Next()
	}
}

// GetClaims extracts JWT claims from context
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
