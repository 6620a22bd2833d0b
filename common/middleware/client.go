package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/jukebox/common/clients"
	"github.com/lyzr/jukebox/common/logger"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ClientUIDKey is the echo context key for the caller's identity
	ClientUIDKey ContextKey = "client_uid"
)

// ExtractClientUID reads X-Client-UID, or assigns a fresh UUID when absent,
// and stores it in both the echo context and the request context.
// The identity is echoed back in the response header.
//
// Accessing in handlers:
//
//	uid := middleware.GetClientUID(c)
func ExtractClientUID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := c.Request().Header.Get(clients.ClientUIDHeader)
			if uid == "" || len(uid) > 128 {
				uid = uuid.NewString()
			}

			c.Set(string(ClientUIDKey), uid)
			c.Response().Header().Set(clients.ClientUIDHeader, uid)

			ctx := clients.WithClientUID(c.Request().Context(), uid)
			if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
				ctx = logger.ContextWithRequestID(ctx, rid)
			}
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// GetClientUID retrieves the client identity from the echo context
// Returns empty string if not set
func GetClientUID(c echo.Context) string {
	uid, _ := c.Get(string(ClientUIDKey)).(string)
	return uid
}
