package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/jeffepok/botnet/pkg/models"
)

// ContextKey represents keys for context values
type ContextKey string

const ProfileContextKey ContextKey = "profile"

// Middleware resolves the bearer token, if any, into a profile stored on the
// request context. Requests without a token stay anonymous; a bad token is
// rejected.
func Middleware(verifier *TokenVerifier, resolver *Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return next(c)
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			claims, err := verifier.Verify(tokenParts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}
			profile, err := resolver.Resolve(c.Request().Context(), claims)
			if err != nil {
				log.Error().Err(err).Str("subject", claims.Subject).Msg("failed to resolve profile")
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve user profile")
			}

			c.Set(string(ProfileContextKey), profile)
			return next(c)
		}
	}
}

// RequireProfile rejects anonymous requests
func RequireProfile() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := ProfileFromContext(c); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}
			return next(c)
		}
	}
}

// ProfileFromContext returns the authenticated profile, if any
func ProfileFromContext(c echo.Context) (*models.UserProfile, bool) {
	p, ok := c.Get(string(ProfileContextKey)).(*models.UserProfile)
	return p, ok && p != nil
}
