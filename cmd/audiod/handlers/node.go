package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/jukebox/cmd/audiod/container"
	"github.com/lyzr/jukebox/cmd/audiod/service"
	"github.com/lyzr/jukebox/common/middleware"
)

// NodeHandler answers requests from peer nodes
type NodeHandler struct {
	resolver *service.Resolver
}

// NewNodeHandler creates a handler backed by the non-delegating resolver
func NewNodeHandler(c *container.Container) *NodeHandler {
	return &NodeHandler{resolver: c.PeerResolver}
}

// Healthy is the probe target of other nodes
// GET /api/node/healthy
func (h *NodeHandler) Healthy(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Audio serves a delegated jukebox request on behalf of user_uid
// GET /api/node/audio/:id?user_uid=
func (h *NodeHandler) Audio(c echo.Context) error {
	req := requestFrom(c)
	if uid := c.QueryParam("user_uid"); uid != "" {
		req.ClientUID = uid
		c.Set(string(middleware.ClientUIDKey), uid)
	}

	outcome := h.resolver.Jukebox(c.Request().Context(), c.Param("id"), req)
	return respond(c, outcome)
}
