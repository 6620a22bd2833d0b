package routes

import (
	"fmt"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/jukebox/cmd/audiod/container"
	"github.com/lyzr/jukebox/cmd/audiod/handlers"
	"github.com/lyzr/jukebox/common/middleware"
)

// RegisterAudioRoutes registers the public audio API
func RegisterAudioRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAudioHandler(c)
	cfg := c.Components.Config

	audio := e.Group("/api/audio")
	audio.Use(middleware.ExtractClientUID())
	{
		audio.GET("/jukebox/:id", h.Jukebox)           // GET /api/audio/jukebox/{id}?update=
		audio.GET("/jukebox/:id/location", h.Location) // GET /api/audio/jukebox/{id}/location
		audio.GET("/external", h.External)             // GET /api/audio/external?url=&fallbackID=&update=

		// POST /api/audio/upload (multipart "file")
		audio.POST("/upload", h.Upload,
			echomw.BodyLimit(bodyLimit(cfg.Audio.MaxUploadBytes)),
			middleware.ClientRateLimitMiddleware(c.UploadLimiter, c.Components.Logger),
		)
	}
}

// bodyLimit renders a byte count in echo's limit syntax
func bodyLimit(n int64) string {
	return fmt.Sprintf("%dB", n)
}
