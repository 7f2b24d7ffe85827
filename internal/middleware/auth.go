package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	staffIDKey = "staff_id"
	staffRole  = "staff"
	// AnonymousStaff is recorded as the author of changes when auth is off.
	AnonymousStaff = "anonymous"
)

type StaffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// StaffAuth requires an HS256 bearer token with role "staff". With an empty
// secret every request passes as AnonymousStaff.
func StaffAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				c.Set(staffIDKey, AnonymousStaff)
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims, err := parseStaffToken(secret, raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid staff token")
			}

			c.Set(staffIDKey, claims.Subject)
			return next(c)
		}
	}
}

func parseStaffToken(secret, raw string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Role != staffRole || claims.Subject == "" {
		return nil, errors.New("token is not a staff token")
	}
	return claims, nil
}

// IssueStaffToken signs a staff token for staffID valid for ttl.
func IssueStaffToken(secret, staffID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("staff jwt secret is empty")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, StaffClaims{
		Role: staffRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign staff token: %w", err)
	}
	return signed, nil
}

// StaffID returns the authenticated staff member, or "" outside StaffAuth.
func StaffID(c echo.Context) string {
	id, _ := c.Get(staffIDKey).(string)
	return id
}
