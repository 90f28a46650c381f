package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/sessiond/internal/auth"
	"github.com/charlesng35/sessiond/pkg/errors"
	"github.com/charlesng35/sessiond/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxUserIDKey   = "userID"
	CtxDeviceIDKey = "deviceID"

	// RefreshCookieName is the cookie carrying the refresh token.
	RefreshCookieName = "refreshToken"
)

// RefreshVerifier validates a refresh token against the account state without redeeming it.
type RefreshVerifier interface {
	VerifyRefreshToken(ctx context.Context, refreshToken string) (iauth.Principal, error)
}

// Auth requires a valid bearer access token.
func Auth(tokens *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, tokens)
		if !ok {
			unauthorized(c)
			return
		}
		setIdentity(c, claims.Subject, claims.DeviceID)
		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

// OptionalAuth attaches the bearer identity when a valid access token is
// present and lets the request through anonymously otherwise.
func OptionalAuth(tokens *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, tokens); ok {
			setIdentity(c, claims.Subject, claims.DeviceID)
			c.Set(CtxClaimsKey, claims)
		}
		c.Next()
	}
}

// HybridAuth accepts a valid bearer access token or, failing that, a refresh
// token cookie that is still redeemable.
func HybridAuth(tokens *iauth.JWTService, refresh RefreshVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, tokens); ok {
			setIdentity(c, claims.Subject, claims.DeviceID)
			c.Set(CtxClaimsKey, claims)
			c.Next()
			return
		}

		cookie, err := c.Cookie(RefreshCookieName)
		if err != nil || cookie == "" {
			unauthorized(c)
			return
		}
		principal, err := refresh.VerifyRefreshToken(c.Request.Context(), cookie)
		if err != nil {
			unauthorized(c)
			return
		}
		setIdentity(c, principal.UserID, principal.DeviceID)
		c.Next()
	}
}

// UserID returns the authenticated user id, if any.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}

// DeviceID returns the device id of the authenticated token, if any.
func DeviceID(c *gin.Context) string {
	return c.GetString(CtxDeviceIDKey)
}

func bearerClaims(c *gin.Context, tokens *iauth.JWTService) (*iauth.Claims, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return nil, false
	}

	claims, err := tokens.Verify(strings.TrimSpace(authz[7:]))
	if err != nil {
		return nil, false
	}
	// Refresh tokens are never accepted as bearer credentials.
	if claims.IsRefresh() || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

func setIdentity(c *gin.Context, userID, deviceID string) {
	c.Set(CtxUserIDKey, userID)
	if deviceID != "" {
		c.Set(CtxDeviceIDKey, deviceID)
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, errors.ErrUnauthorized)
}
