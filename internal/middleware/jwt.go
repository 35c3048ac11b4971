package middleware // middleware contains reusable HTTP middleware functions

import (
	"context"
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
	"github.com/labstack/echo/v4"  // Echo framework used for defining middleware

	"github.com/topgun312/referal-api-test/internal/repository"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the caller's identity into the request context. The provided
// secret must match the one used when issuing tokens.
//
// The subject claim is resolved against the users table on every request:
// a token whose user no longer exists is rejected with 401, and a token
// whose user has been deactivated is rejected with 403 even while the
// token itself is still unexpired. Handlers behind this middleware read
// the caller's identity via c.Get("user_id") and c.Get("email");
// ownership of referral codes is still re-checked against the database
// because the authenticated identity and the code owner are independent
// facts.
func JWTAuth(secret string, users *repository.UserRepo) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Parse with HS256 and our secret; reject any other signing method.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			sub, ok := claims["sub"].(float64)
			if !ok || sub <= 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			u, err := users.GetByID(ctx, uint64(sub))
			if err != nil {
				// Deleted accounts invalidate their outstanding tokens.
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if !u.IsActive {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "user inactive"})
			}

			c.Set("user_id", u.ID)
			c.Set("email", u.Email)
			return next(c)
		}
	}
}
