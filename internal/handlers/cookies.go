package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sessiond/internal/middleware"
)

// CookieConfig controls how the refresh token cookie is written.
type CookieConfig struct {
	// Secure is disabled only in the testing environment.
	Secure bool
	MaxAge time.Duration
}

func setRefreshCookie(c *gin.Context, cfg CookieConfig, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.RefreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(c *gin.Context, cfg CookieConfig) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func refreshCookie(c *gin.Context) string {
	value, err := c.Cookie(middleware.RefreshCookieName)
	if err != nil {
		return ""
	}
	return value
}
