package middleware // reusable HTTP middleware for the dev API

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/league-client/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxClaims = "claims"
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// RevocationChecker reports whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects its claims into the request context.  Handlers read them with
// ClaimsFrom, or via c.Get("user_id") and c.Get("role").  Tokens whose jti
// has been revoked are rejected like expired ones.
func JWTAuth(secret string, revoked RevocationChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			if revoked != nil {
				ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
				gone, err := revoked.IsRevoked(ctx, claims.ID)
				cancel()
				if err != nil {
					return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token check failed"})
				}
				if gone {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token revoked"})
				}
			}

			c.Set(CtxClaims, claims)
			c.Set(CtxUserID, claims.Subject)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

// ClaimsFrom returns the claims stored by JWTAuth.
func ClaimsFrom(c echo.Context) (utils.Claims, bool) {
	cl, ok := c.Get(CtxClaims).(utils.Claims)
	return cl, ok
}
