package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"secretcontest/internal/models"
)

const (
	DeviceCookieName = "device_id"
	DeviceHeader     = "X-Device-Id"
	deviceContextKey = "device"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// NormalizeDeviceID returns "" for anything that is not a plausible device token.
func NormalizeDeviceID(v string) string {
	v = strings.TrimSpace(v)
	if !deviceIDPattern.MatchString(v) {
		return ""
	}
	return v
}

type CookieSettings struct {
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// ParseSameSite maps the config value; unknown values fall back to Lax.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// DeviceIdentity reads the device token from X-Device-Id or the device_id
// cookie and keeps the cookie in sync. Requests without either get a freshly
// minted id cookie for next time; for this request Presented stays false.
func DeviceIdentity(cookie CookieSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		headerID := NormalizeDeviceID(c.GetHeader(DeviceHeader))
		cookieID := ""
		if v, err := c.Cookie(DeviceCookieName); err == nil {
			cookieID = NormalizeDeviceID(v)
		}

		d := models.Device{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
		setCookie := false
		switch {
		case headerID != "":
			d.ID, d.Presented = headerID, true
			setCookie = cookieID != headerID
		case cookieID != "":
			d.ID, d.Presented = cookieID, true
		default:
			d.ID = uuid.NewString()
			setCookie = true
		}
		c.Set(deviceContextKey, d)

		if setCookie {
			c.SetSameSite(cookie.SameSite)
			c.SetCookie(DeviceCookieName, d.ID, int(cookie.MaxAge.Seconds()), "/", "", cookie.Secure, true)
		}
		c.Next()
	}
}

// DeviceFromContext returns what DeviceIdentity stored. Without the middleware
// it falls back to connection metadata only.
func DeviceFromContext(c *gin.Context) models.Device {
	if v, ok := c.Get(deviceContextKey); ok {
		if d, ok := v.(models.Device); ok {
			return d
		}
	}
	return models.Device{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
