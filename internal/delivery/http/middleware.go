package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mbeneti/vitalis-auth/internal/domain"
	"github.com/mbeneti/vitalis-auth/pkg/security"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "vitalis_session"

// Context keys populated by SessionMiddleware.
const (
	ctxPrincipalID = "principal_id"
	ctxRole        = "principal_role"
)

// sessionToken extracts the token from the session cookie, falling back to a
// Bearer Authorization header for non-browser clients.
func sessionToken(c echo.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := c.Request().Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// SessionMiddleware validates the session token on every request and injects
// the resolved principal identity into the echo context.
func SessionMiddleware(tokens *security.TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := tokens.Validate(sessionToken(c))
			if err != nil {
				switch {
				case errors.Is(err, security.ErrTokenMissing):
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session token"})
				case errors.Is(err, security.ErrTokenExpired):
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired"})
				default:
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session token"})
				}
			}

			role, err := domain.ParseRole(claims.Role)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session token"})
			}

			c.Set(ctxPrincipalID, claims.PrincipalID)
			c.Set(ctxRole, role)

			return next(c)
		}
	}
}

// setSessionCookie delivers the token as an HTTP-only, SameSite=Lax cookie
// whose max-age matches the token lifetime.
func setSessionCookie(c echo.Context, token string, ttl time.Duration, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the cookie. With no server-side session table,
// this is all logout can do; the token itself remains valid until expiry.
func clearSessionCookie(c echo.Context, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
