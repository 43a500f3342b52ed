package http

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/modforge/assembler/internal/apierr"
	"github.com/modforge/assembler/internal/domain"
)

// Context keys the rest of the package reads authenticated identity
// from, set by jwtAuth after a token verifies.
const (
	ctxUserID = "modforge_user_id"
	ctxTier   = "modforge_tier"
)

// userClaims is the minimal claim set the external auth system is
// expected to issue: the subject is the user ID (domain.User.ID),
// "tier" carries the subscription tier (§3 User invariants — users and
// tiers are owned by that external system, not minted here).
type userClaims struct {
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

// jwtAuth verifies the Authorization: Bearer <token> header against
// secret/audience and, on success, stashes the caller's user ID and
// tier on the echo.Context for handlers to read.
func jwtAuth(secret, audience string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				return writeAPIError(c, fmt.Errorf("%w: missing bearer token", apierr.ErrUnauthorized))
			}

			var claims userClaims
			token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			}, jwt.WithAudience(audience))
			if err != nil || !token.Valid {
				return writeAPIError(c, fmt.Errorf("%w: invalid bearer token", apierr.ErrUnauthorized))
			}
			if claims.Subject == "" {
				return writeAPIError(c, fmt.Errorf("%w: token missing subject", apierr.ErrUnauthorized))
			}

			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxTier, domain.Tier(claims.Tier))
			return next(c)
		}
	}
}

func userID(c echo.Context) string {
	v, _ := c.Get(ctxUserID).(string)
	return v
}

func tier(c echo.Context) domain.Tier {
	v, _ := c.Get(ctxTier).(domain.Tier)
	return v
}

// writeAPIError maps err to its wire shape via internal/apierr and
// writes the response.
func writeAPIError(c echo.Context, err error) error {
	apiErr := apierr.Map(err)
	return c.JSON(apiErr.Status, errorResponse{Error: string(apiErr.Code), Message: apiErr.Message})
}
