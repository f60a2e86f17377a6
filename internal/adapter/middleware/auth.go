// Package middleware holds the Echo middleware every protected route
// shares: bearer-token authentication, role authorization, and the
// Idempotency-Key transport cache.
package middleware

import (
	"strings"

	"loanledger/internal/domain/account"
	"loanledger/internal/domain/apperr"
	"loanledger/internal/engine/auth"

	"github.com/labstack/echo/v4"
)

const (
	claimsContextKey = "auth_claims"
)

// Claims returns the verified caller identity stashed on the request
// context by Authenticate. Handlers call this instead of re-parsing the
// Authorization header.
func Claims(c echo.Context) *auth.Claims {
	v, _ := c.Get(claimsContextKey).(*auth.Claims)
	return v
}

// Authenticate verifies the Authorization: Bearer <token> header and
// stashes the resulting Claims on the request context.
func Authenticate(verifier auth.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			const prefix = "Bearer "
			var token string
			switch {
			case strings.HasPrefix(header, prefix):
				token = strings.TrimSpace(strings.TrimPrefix(header, prefix))
			default:
				// Browser websocket clients cannot set Authorization, so the
				// stream route accepts the same credential as a query param.
				token = c.QueryParam("access_token")
			}
			if token == "" {
				return writeAppErr(c, apperr.New(apperr.KindAuthentication, "missing bearer token"))
			}
			claims, err := verifier.Verify(c.Request().Context(), token)
			if err != nil {
				return writeAppErr(c, err)
			}
			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// RequireRole rejects callers whose authenticated role is not in allowed.
// Must run after Authenticate.
func RequireRole(allowed ...account.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := Claims(c)
			if claims == nil {
				return writeAppErr(c, apperr.New(apperr.KindAuthentication, "missing bearer token"))
			}
			for _, r := range allowed {
				if claims.Role == r {
					return next(c)
				}
			}
			return writeAppErr(c, apperr.New(apperr.KindAuthorization, "role not permitted for this operation"))
		}
	}
}

func writeAppErr(c echo.Context, err error) error {
	msg := err.Error()
	if ae, ok := err.(*apperr.Error); ok {
		msg = ae.Message
	}
	return c.JSON(apperr.ToHTTPStatus(apperr.KindOf(err)), echo.Map{"success": false, "message": msg})
}
