package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/infrastructure/config"
)

// RefreshCookie writes and clears the HttpOnly cookie carrying the refresh token
type RefreshCookie struct {
	name     string
	domain   string
	path     string
	secure   bool
	sameSite http.SameSite
}

// NewRefreshCookie builds the cookie settings from configuration
func NewRefreshCookie(cfg config.CookieConfig) RefreshCookie {
	rc := RefreshCookie{
		name:     cfg.Name,
		domain:   cfg.Domain,
		path:     cfg.Path,
		secure:   cfg.Secure,
		sameSite: http.SameSiteStrictMode,
	}
	switch strings.ToLower(cfg.SameSite) {
	case "lax":
		rc.sameSite = http.SameSiteLaxMode
	case "none":
		rc.sameSite = http.SameSiteNoneMode
	}
	if rc.name == "" {
		rc.name = "refreshToken"
	}
	if rc.path == "" {
		rc.path = "/"
	}
	return rc
}

// Set stores the refresh token until expiresAt
func (rc RefreshCookie) Set(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(rc.sameSite)
	c.SetCookie(rc.name, token, maxAge, rc.path, rc.domain, rc.secure, true)
}

// Clear expires the cookie on the client
func (rc RefreshCookie) Clear(c *gin.Context) {
	c.SetSameSite(rc.sameSite)
	c.SetCookie(rc.name, "", -1, rc.path, rc.domain, rc.secure, true)
}

// Read returns the refresh token from the cookie, or "" when absent
func (rc RefreshCookie) Read(c *gin.Context) string {
	token, err := c.Cookie(rc.name)
	if err != nil {
		return ""
	}
	return token
}
