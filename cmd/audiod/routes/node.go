package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/jukebox/cmd/audiod/container"
	"github.com/lyzr/jukebox/cmd/audiod/handlers"
	"github.com/lyzr/jukebox/common/middleware"
)

// RegisterNodeRoutes registers the endpoints other nodes call
func RegisterNodeRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewNodeHandler(c)

	nodes := e.Group("/api/node")
	nodes.Use(middleware.ExtractClientUID())
	{
		nodes.GET("/healthy", h.Healthy) // GET /api/node/healthy
		nodes.GET("/audio/:id", h.Audio) // GET /api/node/audio/{id}?user_uid=
	}
}
